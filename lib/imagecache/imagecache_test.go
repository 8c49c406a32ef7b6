package imagecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutTake(t *testing.T) {
	c := New(time.Minute)

	c.Put("U1", []byte("photo"))
	assert.Equal(t, 1, c.Len())

	data, ok := c.Take("U1")
	assert.True(t, ok)
	assert.Equal(t, []byte("photo"), data)

	// Consumed: a second question has no photo to go with it.
	_, ok = c.Take("U1")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTake_UnknownUser(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Take("nobody")
	assert.False(t, ok)
}

func TestPut_ReplacesEarlierImage(t *testing.T) {
	c := New(time.Minute)

	c.Put("U1", []byte("first"))
	c.Put("U1", []byte("second"))
	assert.Equal(t, 1, c.Len())

	data, ok := c.Take("U1")
	assert.True(t, ok)
	assert.Equal(t, []byte("second"), data)
}

func TestExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)

	c.Put("U1", []byte("photo"))
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Take("U1")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}
