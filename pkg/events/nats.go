package events

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures a NATSPublisher.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	CAFile        string `mapstructure:"caFile"`
}

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher sends every event to the subject <prefix>.<entity>.<op>.
type NATSPublisher struct {
	conn          natsConn
	subjectPrefix string
}

// NewNATSPublisher connects to the configured server.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cmp.Or(cfg.URL, nats.DefaultURL), natsOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}
	return newNATSPublisher(nc, cfg.SubjectPrefix), nil
}

func newNATSPublisher(conn natsConn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subjectPrefix: cmp.Or(subjectPrefix, "pgapi")}
}

func natsOptions(c NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("pgapi"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.CAFile != "" {
		opts = append(opts, nats.RootCAs(c.CAFile))
	}
	return opts
}

func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject an event goes to.
func (p *NATSPublisher) Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", p.subjectPrefix, e.Entity, e.Op)
}

// Publish sends e and waits for the server to acknowledge the flush.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(e)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
