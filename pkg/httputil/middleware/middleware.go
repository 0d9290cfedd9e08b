// Package middleware provides the HTTP middleware wired in front of the REST
// API: request ids, access logging, CORS and basic authentication.
package middleware

import (
	"net/http"
	"slices"

	"github.com/edgeflare/pgapi/pkg/httputil"
)

// Chain applies one or more middleware functions to a handler in the order they were provided.
// The first middleware in the list will be the outermost wrapper (executed first).
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequireUser lets a request through only when the basic auth user stored in
// its context is one of users. It answers 401 without a user and 403 for
// anyone else.
func RequireUser(users ...string) httputil.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := httputil.BasicAuthUser(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !slices.Contains(users, user) {
				httputil.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
