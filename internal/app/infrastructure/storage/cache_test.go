package storage

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestCache_SetGetClear(t *testing.T) {
	t.Parallel()

	c := NewCache[int](16, 0, nil)

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.ClearKey("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	seen := map[string]int{}
	for k, v := range c.All() {
		seen[k] = v
	}
	assert.Equal(t, map[string]int{"b": 2}, seen)

	c.ClearAll()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	t.Parallel()

	c := NewCache[string](4, time.Hour, nil)
	c.Set("k", "old")
	c.Set("k", "new")

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "new", v)
}
