package mockdata

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
)

var epoch = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func sized(id string, size int64) *models.MockDataSet {
	return &models.MockDataSet{ID: id, Size: size, Data: id}
}

func TestCache_EvictsLeastRecentlyUpdatedFirst(t *testing.T) {
	c := NewCache(100, 0, utils.NewFakeClock(epoch))

	c.Put(sized("a", 40))
	c.Put(sized("b", 40))
	c.Put(sized("a", 40)) // a becomes most recent
	c.Put(sized("c", 40))

	assert.Equal(t, []string{"a", "c"}, c.Keys())
	stats := c.Stats()
	assert.Equal(t, int64(80), stats.Bytes)
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestCache_SizeNeverExceedsMax(t *testing.T) {
	c := NewCache(1000, 0, nil)
	for i := 0; i < 200; i++ {
		c.Put(sized(fmt.Sprintf("ds-%d", i), int64(1+i*7%300)))
		require.LessOrEqual(t, c.Stats().Bytes, int64(1000))
	}
}

func TestCache_OversizedEntryIsNotCached(t *testing.T) {
	c := NewCache(50, 0, nil)
	c.Put(sized("small", 10))
	c.Put(sized("huge", 51))

	_, ok := c.Get("huge")
	assert.False(t, ok)
	_, ok = c.Get("small")
	assert.True(t, ok)
}

func TestCache_MaxAgeIsAMiss(t *testing.T) {
	clock := utils.NewFakeClock(epoch)
	c := NewCache(0, time.Minute, clock)
	c.Put(sized("a", 10))

	clock.Advance(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, int64(0), c.Stats().Bytes)
}

func TestCache_ExpiredEntriesGoBeforeValidOnes(t *testing.T) {
	clock := utils.NewFakeClock(epoch)
	c := NewCache(100, time.Minute, clock)

	c.Put(sized("old-valid", 40))
	clock.Advance(time.Second)
	expiring := sized("expiring", 40)
	exp := epoch.Add(10 * time.Second)
	expiring.ExpiresAt = &exp
	c.Put(expiring)

	clock.Advance(20 * time.Second)
	c.Put(sized("new", 40))

	assert.Equal(t, []string{"old-valid", "new"}, c.Keys())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCache_AgedEntriesAreDroppedBeforeEviction(t *testing.T) {
	clock := utils.NewFakeClock(epoch)
	c := NewCache(100, time.Minute, clock)

	c.Put(sized("a", 40))
	clock.Advance(30 * time.Second)
	c.Put(sized("b", 40))
	clock.Advance(45 * time.Second)

	// a is 75s old and past max age, b is 45s old
	c.Put(sized("c", 40))
	assert.Equal(t, []string{"b", "c"}, c.Keys())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func TestCache_ExpiredDataSetIsAMiss(t *testing.T) {
	clock := utils.NewFakeClock(epoch)
	c := NewCache(0, 0, clock)
	ds := sized("a", 1)
	exp := epoch.Add(time.Second)
	ds.ExpiresAt = &exp
	c.Put(ds)

	clock.Advance(2 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_GetReturnsCopies(t *testing.T) {
	c := NewCache(0, 0, nil)
	ds := sized("a", 1)
	ds.Metadata.Tags = []string{"x"}
	c.Put(ds)

	got, ok := c.Get("a")
	require.True(t, ok)
	got.Metadata.Tags[0] = "changed"

	again, _ := c.Get("a")
	assert.Equal(t, "x", again.Metadata.Tags[0])
	assert.Equal(t, uint64(2), c.Stats().Hits)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(500, time.Minute, nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("ds-%d", (w*31+i)%40)
				c.Put(sized(id, int64(10+i%30)))
				c.Get(id)
				if i%17 == 0 {
					c.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Bytes, int64(500))
}
