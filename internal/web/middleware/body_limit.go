package middleware

import (
	"net/http"

	"github.com/asgardtech/pathsec/internal/web/response"
)

// BodyLimit caps request bodies at limit bytes. Requests that declare a
// larger Content-Length are rejected up front; others fail when the handler
// reads past the limit.
func BodyLimit(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				response.RenderRequestTooLarge(w, limit)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
