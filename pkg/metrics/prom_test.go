package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartPrometheusServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	EventsPublished.WithLabelValues("test", "ok").Inc()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: addr, Path: "/m", Logger: zap.NewNop()})

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/m")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, `pgapi_events_published_total{sink="test",status="ok"}`)

	cancel()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestCollectorsRegistered(t *testing.T) {
	Requests.WithLabelValues("posts", "gets", "200").Inc()
	StorageErrors.WithLabelValues("posts", "gets").Inc()
	QueryErrors.WithLabelValues("posts", "gets").Inc()
	RequestDuration.WithLabelValues("posts", "gets").Observe(0.01)

	assert.GreaterOrEqual(t, testutil.ToFloat64(Requests.WithLabelValues("posts", "gets", "200")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(StorageErrors.WithLabelValues("posts", "gets")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(QueryErrors.WithLabelValues("posts", "gets")), float64(1))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(RequestDuration, "pgapi_request_duration_seconds"), 1)

	problems, err := testutil.CollectAndLint(Requests)
	require.NoError(t, err)
	assert.Empty(t, problems)
}
