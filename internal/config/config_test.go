package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TASK_TTL_SECONDS", "")
	t.Setenv("RATE_LIMIT_RPS", "")

	cfg := Load()
	if cfg.KafkaBrokers != "localhost:9092" {
		t.Fatalf("expected default brokers, got %q", cfg.KafkaBrokers)
	}
	if cfg.TaskTTL != time.Hour {
		t.Fatalf("expected default task TTL 1h, got %v", cfg.TaskTTL)
	}
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("expected default rate limit 10 rps, got %v", cfg.RateLimitRPS)
	}
	if cfg.RiskRequestTopic != "risk-analysis-requests" {
		t.Fatalf("expected default risk request topic, got %q", cfg.RiskRequestTopic)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TASK_TTL_SECONDS", "120")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ANALYTICS_ENABLED", "false")

	cfg := Load()
	if cfg.KafkaBrokers != "k1:9092,k2:9092" {
		t.Fatalf("expected broker override, got %q", cfg.KafkaBrokers)
	}
	if cfg.TaskTTL != 2*time.Minute {
		t.Fatalf("expected task TTL 2m, got %v", cfg.TaskTTL)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5 rps, got %v", cfg.RateLimitRPS)
	}
	if cfg.AnalyticsEnabled {
		t.Fatal("expected analytics disabled")
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("TASK_TTL_SECONDS", "not-a-number")
	t.Setenv("RATE_LIMIT_BURST", "lots")

	cfg := Load()
	if cfg.TaskTTL != time.Hour {
		t.Fatalf("expected fallback TTL, got %v", cfg.TaskTTL)
	}
	if cfg.RateLimitBurst != 20 {
		t.Fatalf("expected fallback burst, got %d", cfg.RateLimitBurst)
	}
}
