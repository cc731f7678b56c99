package knowledge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("pool exhaustion", []Hit{{Title: "Pool tuning", Snippet: "raise max_connections"}})

	hits, ok := cache.Get("pool exhaustion")
	assert.True(t, ok)
	assert.Len(t, hits, 1)
	assert.Equal(t, "Pool tuning", hits[0].Title)
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	hits, ok := cache.Get("nothing stored")
	assert.False(t, ok)
	assert.Nil(t, hits)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("key", []Hit{{Title: "stale"}})

	_, ok := cache.Get("key")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("key", []Hit{{Title: "old"}})
	cache.Set("key", []Hit{{Title: "new"}})

	hits, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "new", hits[0].Title)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", []Hit{{Title: "shared"}})
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}
	wg.Wait()

	hits, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "shared", hits[0].Title)
}
