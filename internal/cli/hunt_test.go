package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRange(t *testing.T) {
	t.Run("last produces a trailing window", func(t *testing.T) {
		from, to, err := resolveRange("", "", time.Hour)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), to, time.Minute)
		assert.Equal(t, time.Hour, to.Sub(from))
	})

	t.Run("explicit from and to", func(t *testing.T) {
		from, to, err := resolveRange("2026-03-01T00:00:00Z", "2026-03-02T00:00:00Z", 0)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), to)
	})

	t.Run("from without to ends now", func(t *testing.T) {
		_, to, err := resolveRange("2026-03-01T00:00:00Z", "", 0)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), to, time.Minute)
	})

	t.Run("last and from are mutually exclusive", func(t *testing.T) {
		_, _, err := resolveRange("2026-03-01T00:00:00Z", "", time.Hour)
		assert.Error(t, err)
	})

	t.Run("neither last nor from", func(t *testing.T) {
		_, _, err := resolveRange("", "", 0)
		assert.Error(t, err)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, _, err := resolveRange("2026-03-02T00:00:00Z", "2026-03-01T00:00:00Z", 0)
		assert.Error(t, err)
	})

	t.Run("malformed timestamps", func(t *testing.T) {
		_, _, err := resolveRange("yesterday", "", 0)
		assert.Error(t, err)
	})
}
