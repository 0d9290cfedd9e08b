// Package events publishes the mutations served by the REST API to message
// brokers. A publisher is attached to an entity through Hook, which runs after
// the response has been sent.
package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edgeflare/pgapi/pkg/metrics"
	"github.com/edgeflare/pgapi/pkg/rest"
	"go.uber.org/zap"
)

// Op is the kind of mutation an Event reports.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one successful mutation of an entity.
type Event struct {
	Entity string `json:"entity"`
	Op     Op     `json:"op"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data"`
	TsMs   int64  `json:"ts_ms"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

// PublishTimeout bounds a single Publish made by Hook.
var PublishTimeout = 5 * time.Second

var ops = map[rest.Method]Op{
	rest.MethodCreate: OpCreate,
	rest.MethodUpdate: OpUpdate,
	rest.MethodDelete: OpDelete,
}

// Hook returns a rest.AfterHook publishing create, update and delete results
// to pub. Failures are logged and counted; the response is already sent.
func Hook(pub Publisher, logger *zap.Logger) rest.AfterHook {
	if logger == nil {
		logger = zap.L()
	}
	return func(r *http.Request, res rest.Result) {
		op, ok := ops[res.Method]
		if !ok {
			return
		}
		e := Event{
			Entity: res.Entity,
			Op:     op,
			ID:     res.ID,
			Data:   res.Data,
			TsMs:   time.Now().UnixMilli(),
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), PublishTimeout)
		defer cancel()

		if err := pub.Publish(ctx, e); err != nil {
			metrics.EventsPublished.WithLabelValues(pub.Name(), "error").Inc()
			logger.Error("publish event",
				zap.String("sink", pub.Name()),
				zap.String("entity", e.Entity),
				zap.String("op", string(e.Op)),
				zap.String("id", e.ID),
				zap.Error(err),
			)
			return
		}
		metrics.EventsPublished.WithLabelValues(pub.Name(), "ok").Inc()
	}
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

// Publish sends e to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
