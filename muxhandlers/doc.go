// Package muxhandlers provides HTTP middleware for gorilla/mux routers.
//
// Every middleware has the mux.MiddlewareFunc shape. Errors are written as
// JSON through the apierror package so clients see one error format no
// matter which layer rejected the request.
//
// # Ordering
//
// gorilla/mux only runs router.Use middleware for matched routes, so the
// server wraps the whole router with Chain instead:
//
//	h := muxhandlers.Chain(router,
//	    muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{Logger: logger}),
//	    muxhandlers.RequestIDMiddleware(muxhandlers.RequestIDConfig{TrustIncoming: true}),
//	    muxhandlers.AccessLogMiddleware(muxhandlers.AccessLogConfig{Logger: logger}),
//	    cors,
//	)
//
// Recovery comes first so panics anywhere below it still produce a JSON
// 500. The access log sits after the request ID so each record carries it.
//
// # CORS Middleware
//
// CORSMiddleware answers preflight requests itself with 204 and discovers
// the allowed methods from the router, so no OPTIONS routes are needed.
//
//	cors, err := muxhandlers.CORSMiddleware(router, muxhandlers.CORSConfig{
//	    AllowedOrigins: []string{"*"},
//	})
package muxhandlers
