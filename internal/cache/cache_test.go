package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Count int `json:"count"`
}

func TestPrefixedCacheIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	shared := New(nil)
	a := NewPrefixedCache[entry](shared, "a-")
	b := NewPrefixedCache[entry](shared, "b-")

	require.NoError(t, a.Set(ctx, "k", entry{Count: 1}))
	require.NoError(t, b.Set(ctx, "k", entry{Count: 2}))

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)

	require.NoError(t, a.Delete(ctx, "k"))
	_, err = a.Get(ctx, "k")
	assert.Error(t, err)

	got, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
}
