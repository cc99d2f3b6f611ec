package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/veilproof/riskscope/internal/core/domain"
)

func mockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)
	return &Producer{sp: sp, topics: DefaultTopics()}, sp
}

func TestPublishRiskRequestPartitionsByCommitment(t *testing.T) {
	p, sp := mockedProducer(t)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "risk-analysis-requests" {
			t.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "0xc0ffee" {
			t.Errorf("partition key = %q, want commitment", key)
		}
		value, _ := msg.Value.Encode()
		var wire domain.RiskTaskMessage
		if err := json.Unmarshal(value, &wire); err != nil {
			t.Errorf("payload not valid json: %v", err)
		}
		if wire.CorrelationID != wire.TaskID {
			t.Errorf("correlation id %q != task id %q", wire.CorrelationID, wire.TaskID)
		}
		return nil
	})

	err := p.PublishRiskRequest(context.Background(), domain.RiskTaskMessage{
		TaskID:        "t-1",
		Commitment:    "0xc0ffee",
		WalletAddress: "0xabc",
		Timestamp:     time.Now().UTC(),
		CorrelationID: "t-1",
	})
	if err != nil {
		t.Fatalf("PublishRiskRequest() error = %v", err)
	}
}

func TestPublishStrategyRequestAlsoPartitionsByCommitment(t *testing.T) {
	p, sp := mockedProducer(t)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "0xc0ffee" {
			t.Errorf("partition key = %q, want commitment", key)
		}
		return nil
	})

	err := p.PublishStrategyRequest(context.Background(), domain.StrategyTaskMessage{
		TaskID:     "t-2",
		Commitment: "0xc0ffee",
		Parameters: domain.StrategyParameters{StrategyType: "swing"},
	})
	if err != nil {
		t.Fatalf("PublishStrategyRequest() error = %v", err)
	}
}

func TestPublishResultWrapsBrokerFailureAsUpstream(t *testing.T) {
	p, sp := mockedProducer(t)
	sp.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	err := p.PublishRiskResult(context.Background(), domain.TaskResultMessage{
		TaskID: "t-3",
		Status: domain.TaskCompleted,
	})
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestPingReportsBrokerConnectivity(t *testing.T) {
	broker := sarama.NewMockBroker(t, 1)
	broker.SetHandlerByMap(map[string]sarama.MockResponse{
		"MetadataRequest": sarama.NewMockMetadataResponse(t).
			SetBroker(broker.Addr(), broker.BrokerID()).
			SetController(broker.BrokerID()),
	})

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Metadata.Retry.Max = 0
	client, err := sarama.NewClient([]string{broker.Addr()}, cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	p := &Producer{client: client, topics: DefaultTopics()}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() with live broker error = %v", err)
	}

	broker.Close()
	if err := p.Ping(context.Background()); !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("Ping() after broker loss = %v, want ErrUpstream", err)
	}
}

func TestPingRejectsClosedClient(t *testing.T) {
	p := &Producer{topics: DefaultTopics()}
	if err := p.Ping(context.Background()); !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("Ping() without client = %v, want ErrUpstream", err)
	}
}

func TestPublishHonorsCancelledContext(t *testing.T) {
	p, _ := mockedProducer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.PublishRiskRequest(ctx, domain.RiskTaskMessage{TaskID: "t-4", Commitment: "0x1"})
	if err == nil {
		t.Fatal("expected context error")
	}
}
