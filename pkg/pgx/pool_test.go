package pgx

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/pgapi/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewPoolUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	start := time.Now()
	_, err := NewPool(context.Background(), PoolConfig{
		ConnString:  "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		PingTimeout: 300 * time.Millisecond,
		Logger:      zap.New(core),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping connection")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotZero(t, logs.FilterMessage("database not ready").Len())
}

func TestPingBackOff(t *testing.T) {
	for _, timeout := range []time.Duration{40 * time.Millisecond, 300 * time.Millisecond, time.Second, time.Minute} {
		b := pingBackOff(timeout)
		next := b.NextBackOff()
		assert.NotEqual(t, backoff.Stop, next, timeout)
		assert.LessOrEqual(t, next, timeout*3/8, timeout)
		assert.Equal(t, timeout, b.MaxElapsedTime)
	}
	assert.Equal(t, 500*time.Millisecond, pingBackOff(time.Minute).InitialInterval)
}

func TestNewPoolInvalid(t *testing.T) {
	_, err := NewPool(context.Background(), PoolConfig{})
	assert.ErrorIs(t, err, ErrNoConnString)

	_, err = NewPool(context.Background(), PoolConfig{ConnString: "postgres://:bad port/"})
	assert.ErrorContains(t, err, "parse connection string")
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, PoolConfig{
		ConnString:  pgtest.ConnString(t),
		MaxConns:    3,
		PingTimeout: 5 * time.Second,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	assert.Equal(t, int32(3), pool.Config().MaxConns)

	var name string
	require.NoError(t, pool.QueryRow(ctx, "SELECT current_setting('application_name')").Scan(&name))
	assert.Equal(t, "pgapi", name)
}
