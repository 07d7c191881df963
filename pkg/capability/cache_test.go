package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	set := Set{"create": true, "create_ha": false}
	require.NoError(t, c.Put("10.0.0.1", set))

	got, ok := c.Get("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, set, got)
}

func TestCache_MissReturnsFalse(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("10.0.0.9")
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("10.0.0.1", Set{"create": true}, 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("10.0.0.1")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("10.0.0.1", Set{"create": true}))
	require.NoError(t, c.Invalidate("10.0.0.1"))

	_, ok := c.Get("10.0.0.1")
	assert.False(t, ok)
}
