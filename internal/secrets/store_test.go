package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "xero-prod", "s3cret"))

	value, err := store.Get(ctx, "xero-prod")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", value)

	require.NoError(t, store.Set(ctx, "xero-prod", "rotated"))
	value, err = store.Get(ctx, "xero-prod")
	require.NoError(t, err)
	assert.Equal(t, "rotated", value)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
