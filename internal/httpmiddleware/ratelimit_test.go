package httpmiddleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	l := NewTokenBucket(3, 60) // one token per second
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4", now), "request %d within capacity", i)
	}
	assert.False(t, l.allow("1.2.3.4", now))

	// Other clients have their own bucket.
	assert.True(t, l.allow("5.6.7.8", now))

	// Two seconds later two tokens are back.
	later := now.Add(2 * time.Second)
	assert.True(t, l.allow("1.2.3.4", later))
	assert.True(t, l.allow("1.2.3.4", later))
	assert.False(t, l.allow("1.2.3.4", later))
}

func TestTokenBucketCapsRefill(t *testing.T) {
	l := NewTokenBucket(2, 60)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("c", now))

	// A long idle period refills to capacity, never beyond.
	later := now.Add(time.Hour)
	assert.True(t, l.allow("c", later))
	assert.True(t, l.allow("c", later))
	assert.False(t, l.allow("c", later))
}
