package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	c := New(ttl)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCache_GetSetExpire(t *testing.T) {
	c, now := newTestCache(time.Minute)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetWithTTL_IgnoresNonPositive(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.SetWithTTL("gone", true, 0)
	_, ok := c.Get("gone")
	assert.False(t, ok)
}

func TestCache_Sweep(t *testing.T) {
	c, now := newTestCache(time.Minute)

	c.SetWithTTL("short", true, time.Second)
	c.SetWithTTL("long", true, time.Hour)

	*now = now.Add(time.Minute)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("k", "v")
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}
