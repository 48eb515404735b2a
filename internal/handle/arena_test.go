package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_InsertGet(t *testing.T) {
	var a Arena[string]

	id := a.Insert("vertex")
	require.False(t, id.IsZero())

	got, ok := a.Get(id)
	require.True(t, ok)
	assert.Equal(t, "vertex", got)
	assert.Equal(t, 1, a.Len())
}

func TestArena_ZeroIDNeverResolves(t *testing.T) {
	var a Arena[int]
	a.Insert(7)

	var null ID[int]
	_, ok := a.Get(null)
	assert.False(t, ok)
	assert.Equal(t, "null", null.String())
}

func TestArena_RemoveInvalidatesStaleIDs(t *testing.T) {
	var a Arena[int]

	first := a.Insert(1)
	v, ok := a.Remove(first)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// The slot is reused with a new generation.
	second := a.Insert(2)
	assert.Equal(t, first.Index(), second.Index())
	assert.NotEqual(t, first.Generation(), second.Generation())

	_, ok = a.Get(first)
	assert.False(t, ok, "stale ID must not resolve to the new value")

	got, ok := a.Get(second)
	require.True(t, ok)
	assert.Equal(t, 2, got)

	_, ok = a.Remove(first)
	assert.False(t, ok, "double remove must fail")
}

func TestArena_Each(t *testing.T) {
	var a Arena[int]
	ids := []ID[int]{a.Insert(10), a.Insert(20), a.Insert(30)}
	a.Remove(ids[1])

	sum := 0
	a.Each(func(_ ID[int], v int) {
		sum += v
	})
	assert.Equal(t, 40, sum)
	assert.Equal(t, 2, a.Len())
}

func TestArena_ForeignIndex(t *testing.T) {
	var a, b Arena[int]
	a.Insert(1)
	a.Insert(2)
	id := a.Insert(3)

	_, ok := b.Get(id)
	assert.False(t, ok)
}

func TestArena_Concurrent(t *testing.T) {
	var a Arena[int]
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := a.Insert(g*1000 + i)
				if v, ok := a.Get(id); !ok || v != g*1000+i {
					t.Errorf("Get(%v) = %d, %v", id, v, ok)
				}
				a.Remove(id)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 0, a.Len())
}
