// Package nats is the status bus: a single broadcast subject carrying
// ephemeral task status events from the API/worker tiers to every connected
// broadcaster instance. Events are notifications only; the commitment cache
// remains the source of truth.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

const DefaultSubject = "task.status.updates"

type Bus struct {
	conn    *nats.Conn
	subject string
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
}

func New(url, subject string) (*Bus, error) {
	return NewWithOptions(url, subject, Options{})
}

// NewWithOptions connects with unlimited reconnects: a dropped broker
// connection must come back on its own without losing subscription state.
func NewWithOptions(url, subject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 5 * time.Second
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("riskscope-status-bus"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("status_bus_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("status_bus_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "connect status bus", err)
	}
	return &Bus{conn: conn, subject: subject}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Connected reports the live broker connection state for readiness checks.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// PublishStatus is fire-and-forget. Callers treat failures as a lost
// optimization, never as a failed status write.
func (b *Bus) PublishStatus(_ context.Context, update domain.StatusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode status update: %w", err)
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return domain.WrapError(domain.ErrUpstream, "publish status update", err)
	}
	return nil
}

// SubscribeStatus delivers every event on the subject to the listener until
// ctx is cancelled. The NATS client re-establishes the subscription across
// reconnects, so the listener registration survives broker loss.
func (b *Bus) SubscribeStatus(ctx context.Context, listener ports.StatusListener) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var update domain.StatusUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			slog.Warn("status_event_malformed", "error", err)
			return
		}
		if update.TaskID == "" {
			slog.Warn("status_event_missing_task_id")
			return
		}
		listener.OnStatusUpdate(update)
	})
	if err != nil {
		return domain.WrapError(domain.ErrUpstream, "subscribe status bus", err)
	}
	if err := b.conn.Flush(); err != nil {
		return domain.WrapError(domain.ErrUpstream, "flush status bus", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain status subscription: %w", err)
	}
	return nil
}
