package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/render"

	apperrors "github.com/mcrsoft/keyserve/internal/errors"
	"github.com/mcrsoft/keyserve/internal/infrastructure"
)

// adminTokenHeader carries the shared admin secret for issuance and
// revocation endpoints.
const adminTokenHeader = "X-Admin-Token"

// AdminAuth guards the admin surface. The presented header is compared in
// constant time against the configured token. An empty configured token
// disables the surface entirely: every request is rejected rather than
// silently allowed.
func AdminAuth(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(adminTokenHeader)

			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				problem := apperrors.NewProblemDetails(
					http.StatusUnauthorized,
					"/errors/unauthorized",
					"Unauthorized",
					"A valid admin token is required for this operation.",
					r.URL.Path,
				).WithExtension("trace_id", infrastructure.GetTraceID(r.Context())).
					WithExtension("error_code", "UNAUTHORIZED")
				render.Render(w, r, problem)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
