package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/agentchain/common/logger"
)

// RedisStore is a Redis-backed context store. Entries expire after TTL so
// abandoned runs do not accumulate.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisStore creates a Redis-backed context store.
func NewRedisStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (s *RedisStore) contextKey(executionID, nodeID string) string {
	return fmt.Sprintf("chainctx:%s:%s", executionID, nodeID)
}

func (s *RedisStore) outputKey(executionID, nodeID string) string {
	return fmt.Sprintf("chainout:%s:%s", executionID, nodeID)
}

// SaveContext records the input context for a node execution.
func (s *RedisStore) SaveContext(ctx context.Context, executionID, nodeID string, input map[string]interface{}) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := s.client.Set(ctx, s.contextKey(executionID, nodeID), data, s.ttl).Err(); err != nil {
		s.log.Error("redis context SET failed", "execution_id", executionID, "node_id", nodeID, "error", err)
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

// SaveOutput records a node's output.
func (s *RedisStore) SaveOutput(ctx context.Context, executionID, nodeID string, output interface{}) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if err := s.client.Set(ctx, s.outputKey(executionID, nodeID), data, s.ttl).Err(); err != nil {
		s.log.Error("redis output SET failed", "execution_id", executionID, "node_id", nodeID, "error", err)
		return fmt.Errorf("failed to save output: %w", err)
	}
	return nil
}

// LoadOutput retrieves a previously saved output.
func (s *RedisStore) LoadOutput(ctx context.Context, executionID, nodeID string) (interface{}, bool, error) {
	data, err := s.client.Get(ctx, s.outputKey(executionID, nodeID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load output: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return out, true, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
