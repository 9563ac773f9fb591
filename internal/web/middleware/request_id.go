package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	webcontext "github.com/asgardtech/pathsec/internal/web/context"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied request IDs
const maxRequestIDLength = 128

// RequestID assigns each request an ID, reusing a well-formed client supplied
// X-Request-ID and generating a UUID otherwise
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if !validRequestID(requestID) {
				requestID = uuid.NewString()
			}

			r = r.WithContext(webcontext.SetRequestID(r.Context(), requestID))
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	return webcontext.GetRequestID(ctx)
}

// validRequestID accepts printable ASCII without spaces so IDs are safe to
// echo into headers and logs
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
