package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/agentchain/common/sdk"
)

// RedisStore is a Redis-backed memory scope. Entries live in one hash per
// scope so a whole scope can be inspected or dropped at once.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed scope store under the given namespace.
func NewRedisStore(client *redis.Client, namespace string, scope Scope) *RedisStore {
	if namespace == "" {
		namespace = "chainmem"
	}
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("%s:%s", namespace, scope),
	}
}

// NewRedisAccessor creates an accessor with all four scopes in Redis.
func NewRedisAccessor(client *redis.Client, namespace string) *Accessor {
	return NewAccessor(
		NewRedisStore(client, namespace, ScopeWorking),
		NewRedisStore(client, namespace, ScopeEpisodic),
		NewRedisStore(client, namespace, ScopeSemantic),
		NewRedisStore(client, namespace, ScopeProcedural),
	)
}

// Store saves content under key.
func (s *RedisStore) Store(ctx context.Context, key string, content interface{}, metadata map[string]interface{}) error {
	if key == "" {
		return fmt.Errorf("memory key is required")
	}
	data, err := json.Marshal(&sdk.MemoryEntry{Key: key, Content: content, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, key, data).Err(); err != nil {
		return fmt.Errorf("failed to store memory entry: %w", err)
	}
	return nil
}

// Retrieve loads the entry stored under key.
func (s *RedisStore) Retrieve(ctx context.Context, key string) (*sdk.MemoryEntry, bool, error) {
	data, err := s.client.HGet(ctx, s.key, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve memory entry: %w", err)
	}
	var entry sdk.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal memory entry: %w", err)
	}
	return &entry, true, nil
}

// Search scans the scope hash for substring matches. Fine for the entry
// counts agents produce; swap in a search index if scopes grow large.
func (s *RedisStore) Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]*sdk.MemoryEntry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory scope: %w", err)
	}

	needle := strings.ToLower(query)
	var matches []*sdk.MemoryEntry
	for _, data := range all {
		var entry sdk.MemoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		if needle != "" && !entryMatches(&entry, needle) {
			continue
		}
		if !metadataMatches(entry.Metadata, filters) {
			continue
		}
		matches = append(matches, &entry)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}
