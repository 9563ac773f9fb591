package middleware

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Chain is an ordered list of middleware. The first middleware added is the
// outermost and runs first.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain, skipping nil entries so optional
// middleware can be passed unconditionally
func (c *Chain) Use(middlewares ...Middleware) *Chain {
	for _, m := range middlewares {
		if m != nil {
			c.middlewares = append(c.middlewares, m)
		}
	}
	return c
}

// Then wraps the given handler with all middleware in the chain
func (c *Chain) Then(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		if c.middlewares[i] != nil {
			handler = c.middlewares[i](handler)
		}
	}
	return handler
}

// Append creates a new chain by appending middleware to a copy of the
// current chain
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	next := &Chain{middlewares: make([]Middleware, len(c.middlewares), len(c.middlewares)+len(middlewares))}
	copy(next.middlewares, c.middlewares)
	return next.Use(middlewares...)
}
