// Package profiling serves pprof endpoints. They expose goroutine stacks and
// memory contents, so serve them on an internal-only listener.
package profiling

import (
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// Path is the URL prefix of every profiling endpoint
const Path = "/debug/pprof"

// RegisterRoutes mounts the pprof endpoints under Path
func RegisterRoutes(router chi.Router) {
	router.Route(Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
}

// Handler returns a router serving only the pprof endpoints
func Handler() http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r)
	return r
}
