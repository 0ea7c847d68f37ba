package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "tld:io")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "tld:io", "32.98", time.Minute))
	v, ok, err := m.Get(ctx, "tld:io")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "32.98", v)

	require.NoError(t, m.Delete(ctx, "tld:io"))
	_, ok, err = m.Get(ctx, "tld:io")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 20*time.Millisecond))
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	time.Sleep(10 * time.Millisecond)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
}
