package id

import (
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev, err := New(at)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		next, err := New(at)
		require.NoError(t, err)
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestNewEncodesTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(at)
	require.NoError(t, err)
	parsed, err := ulid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), parsed.Time())
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestNewReturnsEntropyError(t *testing.T) {
	mu.Lock()
	saved := mono
	mono = brokenReader{}
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		mono = saved
		mu.Unlock()
	})

	s, err := New(time.Now())
	require.Error(t, err)
	assert.Empty(t, s)
	assert.Contains(t, err.Error(), "entropy exhausted")
}
