package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// HandlerFunc processes one message. A non-nil error leaves the offset
// unmarked so the message is redelivered; handlers must therefore tolerate
// re-running against the same input.
type HandlerFunc func(ctx context.Context, payload []byte) error

type Consumer struct {
	group    sarama.ConsumerGroup
	handlers map[string]HandlerFunc
}

// NewConsumer joins a consumer group. Offsets are committed manually, only
// after a handler returns without error (at-least-once delivery).
func NewConsumer(brokersCSV, groupID string) (*Consumer, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true
	cfg.Net.DialTimeout = 30 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Version = sarama.V2_1_0_0

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "connect kafka consumer group", err)
	}
	return &Consumer{
		group:    group,
		handlers: make(map[string]HandlerFunc),
	}, nil
}

func (c *Consumer) Register(topic string, handler HandlerFunc) {
	c.handlers[topic] = handler
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

// Run blocks until ctx is cancelled. sarama returns from Consume on every
// rebalance, so the session is re-entered in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}

	h := &groupHandler{handlers: c.handlers}
	for {
		if err := c.group.Consume(ctx, topics, h); err != nil {
			slog.Error("kafka_consume_error", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type groupHandler struct {
	handlers map[string]HandlerFunc
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		handler, ok := h.handlers[msg.Topic]
		if !ok {
			// Should not happen: we only subscribe to registered topics.
			sess.MarkMessage(msg, "")
			continue
		}

		if err := handler(sess.Context(), msg.Value); err != nil {
			slog.Error("kafka_handler_failed",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			// No mark, no commit: the message is redelivered.
			continue
		}

		sess.MarkMessage(msg, "")
		sess.Commit()
	}
	return nil
}
