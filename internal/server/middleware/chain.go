package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

type Middleware func(http.Handler) http.Handler

// applies a series of middlewares to a final http.Handler.
// The middlewares are applied in reverse order, so the first middleware in the
// list is the outermost one, handling the request first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// MuxMiddlewares converts a chain for use with mux.Router.Use, keeping the
// same outermost-first order.
func MuxMiddlewares(middlewares ...Middleware) []mux.MiddlewareFunc {
	out := make([]mux.MiddlewareFunc, len(middlewares))
	for i, m := range middlewares {
		out[i] = mux.MiddlewareFunc(m)
	}
	return out
}
