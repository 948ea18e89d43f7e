package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressionDoublesAndCaps(t *testing.T) {
	b := New(100*time.Millisecond, 5*time.Second)

	assert.Equal(t, 100*time.Millisecond, b.Next())
	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next())
	assert.Equal(t, 800*time.Millisecond, b.Next())
	assert.Equal(t, 1600*time.Millisecond, b.Next())
	assert.Equal(t, 3200*time.Millisecond, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestReset(t *testing.T) {
	b := Default()
	for i := 0; i < 10; i++ {
		b.Next()
	}
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Next())
}
