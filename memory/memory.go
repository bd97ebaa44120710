// Package memory provides the four-scope agent memory subsystem: working,
// episodic, semantic and procedural stores behind one accessor. The engine
// treats memory as opaque; only agent executors reach into it.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lyzr/agentchain/common/sdk"
)

// Scope names the four memory scopes.
type Scope string

const (
	ScopeWorking    Scope = "working"
	ScopeEpisodic   Scope = "episodic"
	ScopeSemantic   Scope = "semantic"
	ScopeProcedural Scope = "procedural"
)

// InMemoryStore is a process-local memory scope.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*sdk.MemoryEntry
	order   []string
}

// NewInMemoryStore creates an empty scope store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*sdk.MemoryEntry)}
}

// Store saves content under key, overwriting any previous entry.
func (s *InMemoryStore) Store(ctx context.Context, key string, content interface{}, metadata map[string]interface{}) error {
	if key == "" {
		return fmt.Errorf("memory key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = &sdk.MemoryEntry{Key: key, Content: content, Metadata: metadata}
	return nil
}

// Retrieve loads the entry stored under key.
func (s *InMemoryStore) Retrieve(ctx context.Context, key string) (*sdk.MemoryEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.entries[key]
	if !exists {
		return nil, false, nil
	}
	return entry, true, nil
}

// Search matches query as a case-insensitive substring over keys and string
// content, honoring metadata equality filters and the limit.
func (s *InMemoryStore) Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]*sdk.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matches []*sdk.MemoryEntry
	for _, key := range s.order {
		entry := s.entries[key]
		if needle != "" && !entryMatches(entry, needle) {
			continue
		}
		if !metadataMatches(entry.Metadata, filters) {
			continue
		}
		matches = append(matches, entry)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func entryMatches(entry *sdk.MemoryEntry, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Key), needle) {
		return true
	}
	if text, ok := entry.Content.(string); ok {
		return strings.Contains(strings.ToLower(text), needle)
	}
	return false
}

func metadataMatches(metadata, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, exists := metadata[key]
		if !exists || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Accessor bundles the four scopes.
type Accessor struct {
	working    sdk.MemoryStore
	episodic   sdk.MemoryStore
	semantic   sdk.MemoryStore
	procedural sdk.MemoryStore
}

// NewAccessor creates an accessor over explicit scope stores.
func NewAccessor(working, episodic, semantic, procedural sdk.MemoryStore) *Accessor {
	return &Accessor{
		working:    working,
		episodic:   episodic,
		semantic:   semantic,
		procedural: procedural,
	}
}

// NewInMemoryAccessor creates an accessor with in-process scope stores.
func NewInMemoryAccessor() *Accessor {
	return NewAccessor(NewInMemoryStore(), NewInMemoryStore(), NewInMemoryStore(), NewInMemoryStore())
}

func (a *Accessor) Working() sdk.MemoryStore    { return a.working }
func (a *Accessor) Episodic() sdk.MemoryStore   { return a.episodic }
func (a *Accessor) Semantic() sdk.MemoryStore   { return a.semantic }
func (a *Accessor) Procedural() sdk.MemoryStore { return a.procedural }
