package cache

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
)

func TestHandleCache(t *testing.T) {
	if Disabled {
		t.Skip("caching disabled via KERNELFS_CACHE=0")
	}
	t.Parallel()

	t.Run("set and get", func(t *testing.T) {
		t.Parallel()
		c := NewHandleCache(0, 0)
		fs := memfs.New()
		c.Set("/a", fs)
		assert.Same(t, fs, c.Get("/a"))
		assert.Nil(t, c.Get("/b"))
		assert.Equal(t, 1, c.Size())
	})

	t.Run("expired entries miss", func(t *testing.T) {
		t.Parallel()
		c := NewHandleCache(time.Millisecond, 0)
		c.Set("/a", memfs.New())
		time.Sleep(5 * time.Millisecond)
		assert.Nil(t, c.Get("/a"))
	})

	t.Run("capacity refuses new keys but updates existing", func(t *testing.T) {
		t.Parallel()
		c := NewHandleCache(0, 1)
		first := memfs.New()
		second := memfs.New()
		c.Set("/a", first)
		c.Set("/b", second)
		assert.Nil(t, c.Get("/b"))
		c.Set("/a", second)
		assert.Same(t, second, c.Get("/a"))
	})

	t.Run("invalidate tree drops descendants only", func(t *testing.T) {
		t.Parallel()
		c := NewHandleCache(0, 0)
		for _, p := range []string{"/a", "/a/b", "/a/b/c", "/ab", "/z"} {
			c.Set(p, memfs.New())
		}
		c.InvalidateTree("/a")
		assert.Nil(t, c.Get("/a"))
		assert.Nil(t, c.Get("/a/b"))
		assert.Nil(t, c.Get("/a/b/c"))
		assert.NotNil(t, c.Get("/ab"))
		assert.NotNil(t, c.Get("/z"))
	})

	t.Run("invalidate all", func(t *testing.T) {
		t.Parallel()
		c := NewHandleCache(time.Minute, 10)
		c.Set("/a", memfs.New())
		c.InvalidatePath("/missing")
		assert.Equal(t, 1, c.Size())
		c.Invalidate()
		assert.Equal(t, 0, c.Size())
		stats := c.Stats()
		assert.Equal(t, 10, stats.MaxSize)
		assert.Equal(t, time.Minute, stats.TTL)
	})
}
