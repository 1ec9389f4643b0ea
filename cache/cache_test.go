package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbaldwin/punchclock/storage/memory"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenReadReturnsValueUnchanged(t *testing.T) {
	store := memory.NewStore()
	c := New[payload](store, "k", time.Minute)

	want := payload{Name: "timer", Count: 42}
	c.Write(want)

	got, ok := c.Read()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestReadMissesWhenExpired(t *testing.T) {
	store := memory.NewStore()
	now := time.Now()
	c := New[payload](store, "k", 30*time.Second).WithClock(func() time.Time { return now })

	c.Write(payload{Name: "stale"})

	// Just inside the TTL.
	now = now.Add(29 * time.Second)
	_, ok := c.Read()
	assert.True(t, ok)

	// At the TTL boundary the entry is stale.
	now = now.Add(time.Second)
	_, ok = c.Read()
	assert.False(t, ok)
}

func TestReadMissesOnCorruptEntry(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Set("k", "{not json"))

	c := New[payload](store, "k", time.Minute)
	_, ok := c.Read()
	assert.False(t, ok)
}

func TestReadMissesOnAbsentKey(t *testing.T) {
	c := New[payload](memory.NewStore(), "k", time.Minute)
	_, ok := c.Read()
	assert.False(t, ok)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	store := memory.NewStore()
	c := New[payload](store, "k", time.Minute)

	c.Write(payload{Name: "gone"})
	c.Invalidate()

	_, ok := c.Read()
	assert.False(t, ok)
	_, exists := store.Get("k")
	assert.False(t, exists)
}

func TestWriteReplacesWholesale(t *testing.T) {
	store := memory.NewStore()
	c := New[payload](store, "k", time.Minute)

	c.Write(payload{Name: "first", Count: 1})
	c.Write(payload{Name: "second"})

	got, ok := c.Read()
	require.True(t, ok)
	assert.Equal(t, payload{Name: "second"}, got)
}
