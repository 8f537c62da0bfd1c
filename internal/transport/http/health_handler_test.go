package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcrsoft/keyserve/internal/store"
	apiv1 "github.com/mcrsoft/keyserve/pkg/contracts/api/v1"
)

// unreachableStore fails every ping.
type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHealthHandler(store.NewMemoryStore(), "1.2.3")

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[apiv1.HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "ok", resp.Storage)
}

func TestHealthEndpointDegraded(t *testing.T) {
	handler := NewHealthHandler(unreachableStore{store.NewMemoryStore()}, "1.2.3")

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeBody[apiv1.HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unreachable", resp.Storage)
}
