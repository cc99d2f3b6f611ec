// Package redis implements the commitment-indexed task cache. Every key is
// derived from a task id or a commitment hash; wallet addresses never reach
// this package.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// Cache key builders live in one place so key shapes cannot drift.
func taskStateKey(taskID string) string          { return "task:status:" + taskID }
func taskResultKey(taskID string) string         { return "task:result:" + taskID }
func taskCommitmentKey(taskID string) string     { return "task:commitment:" + taskID }
func commitmentTaskKey(commitment string) string { return "commitment:task:" + commitment }
func analysisKey(commitment string) string       { return "analysis:commitment:" + commitment }
func strategyKey(commitment, strategyType string) string {
	return "strategy:" + commitment + ":" + strategyType
}

// envelope versions every stored value. Reads reject a version mismatch
// instead of trusting the payload shape.
type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

func seal(data []byte) ([]byte, error) {
	return json.Marshal(envelope{Version: domain.ResultSchemaVersion, Data: data})
}

func unseal(raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode cache envelope: %w", err)
	}
	if env.Version != domain.ResultSchemaVersion {
		return nil, fmt.Errorf("cache schema version %d, want %d", env.Version, domain.ResultSchemaVersion)
	}
	return env.Data, nil
}

type Cache struct {
	client *redis.Client
}

func New(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.WrapError(domain.ErrUpstream, "connect redis", err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return domain.WrapError(domain.ErrUpstream, "redis ping", err)
	}
	return nil
}

// getSealed returns (nil, nil) on a miss: absence and expiry are the same
// observable state and always mean "recompute".
func (c *Cache) getSealed(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "redis get", err)
	}
	return unseal(raw)
}

func (c *Cache) setSealed(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	sealed, err := seal(data)
	if err != nil {
		return fmt.Errorf("seal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, sealed, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrUpstream, "redis set", err)
	}
	return nil
}

func (c *Cache) TaskState(ctx context.Context, taskID string) (*domain.TaskState, error) {
	data, err := c.getSealed(ctx, taskStateKey(taskID))
	if err != nil || data == nil {
		return nil, err
	}
	var state domain.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode task state: %w", err)
	}
	return &state, nil
}

func (c *Cache) SetTaskState(ctx context.Context, taskID string, state domain.TaskState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode task state: %w", err)
	}
	return c.setSealed(ctx, taskStateKey(taskID), data, ttl)
}

func (c *Cache) TaskResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	return c.getSealed(ctx, taskResultKey(taskID))
}

func (c *Cache) SetTaskResult(ctx context.Context, taskID string, result json.RawMessage, ttl time.Duration) error {
	return c.setSealed(ctx, taskResultKey(taskID), result, ttl)
}

// LinkTaskCommitment writes both directions in one pipeline so a reader never
// observes half a link.
func (c *Cache) LinkTaskCommitment(ctx context.Context, taskID, commitment string, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskCommitmentKey(taskID), commitment, ttl)
		pipe.Set(ctx, commitmentTaskKey(commitment), taskID, ttl)
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrUpstream, "link task to commitment", err)
	}
	return nil
}

func (c *Cache) TaskByCommitment(ctx context.Context, commitment string) (string, error) {
	return c.getString(ctx, commitmentTaskKey(commitment))
}

func (c *Cache) CommitmentByTask(ctx context.Context, taskID string) (string, error) {
	return c.getString(ctx, taskCommitmentKey(taskID))
}

func (c *Cache) getString(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrUpstream, "redis get", err)
	}
	return val, nil
}

func (c *Cache) CommitmentAnalysis(ctx context.Context, commitment string) (json.RawMessage, error) {
	return c.getSealed(ctx, analysisKey(commitment))
}

func (c *Cache) SetCommitmentAnalysis(ctx context.Context, commitment string, analysis json.RawMessage, ttl time.Duration) error {
	return c.setSealed(ctx, analysisKey(commitment), analysis, ttl)
}

func (c *Cache) StrategyReport(ctx context.Context, commitment, strategyType string) (json.RawMessage, error) {
	return c.getSealed(ctx, strategyKey(commitment, strategyType))
}

func (c *Cache) SetStrategyReport(ctx context.Context, commitment, strategyType string, report json.RawMessage, ttl time.Duration) error {
	return c.setSealed(ctx, strategyKey(commitment, strategyType), report, ttl)
}
