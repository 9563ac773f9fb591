package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/web/response"
)

// Recovery turns a panic in a handler into a logged 500 response
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http aborts the connection on this value
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Error(err),
					zap.Stack("stack"),
				)

				response.RenderInternalError(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
