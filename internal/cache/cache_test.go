package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEviction(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRUNoTTLNeverExpires(t *testing.T) {
	c := NewLRU[int](10, 0)
	c.Set("k", 1)
	c.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	_, ok := c.Get("k")
	assert.True(t, ok)
	assert.Zero(t, c.CleanExpired())
}

func TestLRUDeleteFunc(t *testing.T) {
	c := NewLRU[int](10, 0)
	for _, k := range []string{"ns|2025-01", "ns|2025-02", "ns|2025-03", "other|2025-03"} {
		c.Set(k, 1)
	}
	n := c.DeleteFunc(func(k string) bool {
		return strings.HasPrefix(k, "ns|") && strings.TrimPrefix(k, "ns|") >= "2025-02"
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.Size())

	c.Delete("ns|2025-01")
	c.Purge()
	assert.Zero(t, c.Size())
}

func TestManagerRun(t *testing.T) {
	now := time.Now()
	c := NewLRU[int](10, time.Millisecond)
	c.now = func() time.Time { return now }
	c.Set("k", 1)
	now = now.Add(time.Second)

	m := NewManager(nil)
	m.Register(c)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
