package muxhandlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Chain wraps h with the given middlewares. The first middleware is the
// outermost and sees the request first.
func Chain(h http.Handler, mws ...mux.MiddlewareFunc) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}

	return h
}
