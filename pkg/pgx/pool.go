package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNoConnString = errors.New("pgx: connection string is required")

// PoolConfig configures the pool the Store runs on.
type PoolConfig struct {
	ConnString string
	// MaxConns and MinConns override the pool_max_conns / pool_min_conns
	// values of ConnString when positive.
	MaxConns int32
	MinConns int32
	// ApplicationName is reported in pg_stat_activity. Defaults to pgapi.
	ApplicationName string
	// PingTimeout bounds the exponential backoff retrying the first ping.
	// Zero pings once.
	PingTimeout time.Duration
	Logger      *zap.Logger
}

// NewPool opens a pool and waits until the server answers a ping.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.ConnString == "" {
		return nil, ErrNoConnString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}

	pc, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	name := cfg.ApplicationName
	if name == "" {
		name = "pgapi"
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = name
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	if cfg.PingTimeout > 0 {
		b := pingBackOff(cfg.PingTimeout)
		err = backoff.RetryNotify(ping, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
			logger.Warn("database not ready",
				zap.String("host", pc.ConnConfig.Host),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		})
	} else {
		err = ping()
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	logger.Info("connected to database",
		zap.String("host", pc.ConnConfig.Host),
		zap.String("database", pc.ConnConfig.Database),
		zap.Int32("max_conns", pc.MaxConns),
	)
	return pool, nil
}

// pingBackOff retries for at most timeout. The first interval is scaled down
// for short timeouts so that at least one retry fits.
func pingBackOff(timeout time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(b.InitialInterval, timeout/4)
	b.MaxInterval = max(b.InitialInterval, min(b.MaxInterval, timeout/2))
	b.MaxElapsedTime = timeout
	b.Reset()
	return b
}
