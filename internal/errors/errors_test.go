package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageFailureWrapping(t *testing.T) {
	cause := stderrors.New("disk full")
	err := StorageFailure("insert key", cause)

	assert.True(t, stderrors.Is(err, ErrStorageFailure))
	assert.Contains(t, err.Error(), "insert key")
	assert.Contains(t, err.Error(), "disk full")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(StorageFailure("ping", stderrors.New("timeout"))))
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", ErrStorageFailure)))

	for _, err := range []error{
		ErrKeyNotFound,
		ErrKeyExpired,
		ErrDeviceMismatch,
		ErrAccountExpired,
		nil,
	} {
		assert.False(t, IsRetryable(err))
	}
}
