package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/edgeflare/pgapi/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
	Realm       string
}

// BasicAuthCreds creates a BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{Credentials: credentials}
}

// VerifyBasicAuth is a middleware function for basic authentication. The
// authenticated user is stored in the request context.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	realm := `Basic realm="Restricted"`
	if config.Realm != "" {
		realm = `Basic realm="` + config.Realm + `"`
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				w.Header().Set("WWW-Authenticate", realm)
				httputil.Error(w, http.StatusUnauthorized, "authorization header missing")
				return
			}

			username, password, ok := r.BasicAuth()
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			valid, known := config.Credentials[username]
			if !known || subtle.ConstantTimeCompare([]byte(valid), []byte(password)) != 1 {
				w.Header().Set("WWW-Authenticate", realm)
				httputil.Error(w, http.StatusUnauthorized, "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
