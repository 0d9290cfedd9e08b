package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// ReloadChannel is the channel Watch listens on, i.e.
	// NOTIFY pgapi, 'reload schema';
	ReloadChannel = "pgapi"
	ReloadPayload = "reload schema"
)

// Listener is a dedicated connection that can wait for notifications.
// *pgx.Conn implements it; a pooled connection must be hijacked first.
type Listener interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Watch issues LISTEN on ReloadChannel and calls reload for every ReloadPayload
// notification until ctx is canceled. A failed reload is logged and the
// previous registry content stays in place. Watch returns nil on cancellation
// and the error of the connection otherwise.
func Watch(ctx context.Context, conn Listener, reload func(context.Context) error, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.L()
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ReloadChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if n.Payload != ReloadPayload {
			continue
		}
		if err := reload(ctx); err != nil {
			logger.Error("schema reload failed", zap.Error(err))
			continue
		}
		logger.Info("schema reloaded", zap.String("channel", n.Channel))
	}
}
