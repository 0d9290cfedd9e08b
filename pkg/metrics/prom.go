// Package metrics registers the Prometheus collectors of the REST API and
// serves them on a dedicated listener.
package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgapi_requests_total",
			Help: "Total number of REST requests by entity, method and status code",
		},
		[]string{"entity", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgapi_request_duration_seconds",
			Help:    "Duration of REST requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "method"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgapi_storage_errors_total",
			Help: "Total number of failed storage calls by entity and method",
		},
		[]string{"entity", "method"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgapi_query_errors_total",
			Help: "Total number of query parameters that failed to compile by entity and method",
		},
		[]string{"entity", "method"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgapi_events_published_total",
			Help: "Total number of mutation events published by sink and outcome",
		},
		[]string{"sink", "status"},
	)
)

// PromServerOpts configures the metrics listener. Zero fields take the
// defaults :9100, /metrics, 5s shutdown and 3s header timeouts.
type PromServerOpts struct {
	Addr              string
	Path              string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	Logger            *zap.Logger
}

func (o *PromServerOpts) withDefaults() PromServerOpts {
	var in PromServerOpts
	if o != nil {
		in = *o
	}
	return PromServerOpts{
		Addr:              cmp.Or(in.Addr, ":9100"),
		Path:              cmp.Or(in.Path, "/metrics"),
		ShutdownTimeout:   cmp.Or(in.ShutdownTimeout, 5*time.Second),
		ReadHeaderTimeout: cmp.Or(in.ReadHeaderTimeout, 3*time.Second),
		Logger:            cmp.Or(in.Logger, zap.L()),
	}
}

// StartPrometheusServer serves the default registry on opts.Path until ctx is
// canceled. wg is done once the server has shut down.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	o := opts.withDefaults()
	logger := o.Logger.With(zap.String("addr", o.Addr))

	mux := http.NewServeMux()
	mux.Handle("GET "+o.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer close(done)
		logger.Info("starting metrics server", zap.String("path", o.Path))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-done:
			return
		}

		sctx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Error("shutting down metrics server", zap.Error(err))
			return
		}
		<-done
		logger.Info("metrics server stopped")
	}()
}
