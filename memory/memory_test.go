package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndRetrieve(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "k1", "hello", map[string]interface{}{"topic": "greeting"}))

	entry, ok, err := s.Retrieve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", entry.Content)
	assert.Equal(t, "greeting", entry.Metadata["topic"])

	_, ok, err = s.Retrieve(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "a", "the quick brown fox", map[string]interface{}{"lang": "en"}))
	require.NoError(t, s.Store(ctx, "b", "der schnelle Fuchs", map[string]interface{}{"lang": "de"}))
	require.NoError(t, s.Store(ctx, "c", "quick results matter", map[string]interface{}{"lang": "en"}))

	entries, err := s.Search(ctx, "quick", nil, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = s.Search(ctx, "quick", map[string]interface{}{"lang": "en"}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Key)
}

func TestAccessorScopes(t *testing.T) {
	a := NewInMemoryAccessor()
	ctx := context.Background()

	require.NoError(t, a.Working().Store(ctx, "k", "short-lived", nil))
	require.NoError(t, a.Semantic().Store(ctx, "k", "fact", nil))

	// Scopes are isolated.
	entry, ok, err := a.Working().Retrieve(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "short-lived", entry.Content)

	entry, ok, err = a.Semantic().Retrieve(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fact", entry.Content)

	_, ok, err = a.Episodic().Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
