// Package kafka carries the request/result task pipeline between the API
// tier and the worker pool.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// Topics names the four task-pipeline topics.
type Topics struct {
	RiskRequests     string
	RiskResults      string
	StrategyRequests string
	StrategyResults  string
}

func DefaultTopics() Topics {
	return Topics{
		RiskRequests:     "risk-analysis-requests",
		RiskResults:      "risk-analysis-results",
		StrategyRequests: "strategy-validation-requests",
		StrategyResults:  "strategy-validation-results",
	}
}

type Producer struct {
	client sarama.Client
	sp     sarama.SyncProducer
	topics Topics
}

// NewProducer connects a synchronous producer. A publish returns only after
// the broker confirms replication to all in-sync replicas.
func NewProducer(brokersCSV string, topics Topics) (*Producer, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1 // required by the idempotent producer
	cfg.Net.DialTimeout = 30 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	cfg.Version = sarama.V2_1_0_0

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "connect kafka client", err)
	}
	sp, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, domain.WrapError(domain.ErrUpstream, "connect kafka producer", err)
	}
	return &Producer{client: client, sp: sp, topics: topics}, nil
}

func (p *Producer) Close() error {
	err := p.sp.Close()
	if p.client != nil {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Ping verifies live broker connectivity for readiness checks. A metadata
// refresh fails when no broker in the cluster is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.client == nil || p.client.Closed() {
		return domain.WrapError(domain.ErrUpstream, "kafka readiness", errors.New("client closed"))
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return domain.WrapError(domain.ErrUpstream, "kafka metadata refresh", err)
	}
	if len(p.client.Brokers()) == 0 {
		return domain.WrapError(domain.ErrUpstream, "kafka readiness", errors.New("no reachable brokers"))
	}
	return nil
}

// PublishRiskRequest partitions by commitment: keying by wallet would let
// partition locality correlate wallets.
func (p *Producer) PublishRiskRequest(ctx context.Context, msg domain.RiskTaskMessage) error {
	return p.send(ctx, p.topics.RiskRequests, msg.Commitment, msg)
}

// PublishStrategyRequest also partitions by commitment, keeping one key
// policy across both request topics.
func (p *Producer) PublishStrategyRequest(ctx context.Context, msg domain.StrategyTaskMessage) error {
	return p.send(ctx, p.topics.StrategyRequests, msg.Commitment, msg)
}

func (p *Producer) PublishRiskResult(ctx context.Context, msg domain.TaskResultMessage) error {
	return p.send(ctx, p.topics.RiskResults, msg.TaskID, msg)
}

func (p *Producer) PublishStrategyResult(ctx context.Context, msg domain.TaskResultMessage) error {
	return p.send(ctx, p.topics.StrategyResults, msg.TaskID, msg)
}

func (p *Producer) send(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	// SyncProducer has no context plumbing; honor cancellation at the edges.
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err = p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return domain.WrapError(domain.ErrUpstream, "kafka publish "+topic, err)
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}
