package httputil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func trace(name string, calls *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*calls = append(*calls, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Panics(t, func() { r.Handle("/nomethod", http.HandlerFunc(ok)) })
}

func TestRouterMiddlewareRunsOnce(t *testing.T) {
	var calls []string
	r := NewRouter()
	r.Use(trace("root", &calls))
	r.Handle("GET /test", http.HandlerFunc(ok))

	api := r.Group("/api")
	api.Use(trace("api", &calls))
	v1 := api.Group("/v1")
	v1.Use(trace("v1", &calls))
	v1.Handle("GET /items", http.HandlerFunc(ok))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, []string{"root"}, calls)

	calls = nil
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"root", "api", "v1"}, calls)
	assert.Equal(t, "/api/v1", v1.Prefix())

	calls = nil
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"root"}, calls)
}

func TestRouterGroupRoot(t *testing.T) {
	r := NewRouter()
	posts := r.Group("/posts")
	posts.Handle("GET ", http.HandlerFunc(ok))
	posts.Handle("GET /{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.PathValue("id")))
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts/7", nil))
	assert.Equal(t, "7", w.Body.String())

	assert.Panics(t, func() { r.Handle("GET ", http.HandlerFunc(ok)) })
}

func TestRouterListenAndServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	r := NewRouter(WithLogger(zap.NewNop()), WithServerOptions(func(s *http.Server) {
		s.ReadHeaderTimeout = time.Second
	}))
	r.Handle("GET /test", http.HandlerFunc(ok))

	done := make(chan error, 1)
	go func() { done <- r.ListenAndServe(addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/test")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter()
	for i := range 50 {
		r.Handle(fmt.Sprintf("GET /items%d/{id}", i), http.HandlerFunc(ok))
	}
	req := httptest.NewRequest(http.MethodGet, "/items42/"+strings.Repeat("x", 8), nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
