package nat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		table, err := Parse([]byte(`
mappings:
  - internal: "10.0.0.5:51000"
    external: "203.0.113.7:40000"
    valid_from: 2026-01-01T00:00:00Z
  - internal: "10.0.0.9:52000"
    external: "203.0.113.7:40001"
    valid_from: 2026-01-01T00:00:00Z
    valid_until: 2026-02-01T00:00:00Z
`))
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("missing addresses rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
mappings:
  - internal: "10.0.0.5:51000"
    valid_from: 2026-01-01T00:00:00Z
`))
		assert.Error(t, err)
	})

	t.Run("missing valid_from rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
mappings:
  - internal: "10.0.0.5:51000"
    external: "203.0.113.7:40000"
`))
		assert.Error(t, err)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		_, err := Parse([]byte("mappings: ["))
		assert.Error(t, err)
	})
}

func TestTranslation(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	table := NewTable([]Mapping{
		{Internal: "10.0.0.5:51000", External: "203.0.113.7:40000", ValidFrom: from, ValidUntil: until},
		{Internal: "10.0.0.5:51000", External: "203.0.113.9:41000", ValidFrom: until},
	})

	t.Run("lookup respects the validity interval", func(t *testing.T) {
		ext, ok := table.ToExternal("10.0.0.5:51000", from.Add(time.Hour))
		require.True(t, ok)
		assert.Equal(t, "203.0.113.7:40000", ext)

		// After the first mapping expires, the second one applies.
		ext, ok = table.ToExternal("10.0.0.5:51000", until.Add(time.Hour))
		require.True(t, ok)
		assert.Equal(t, "203.0.113.9:41000", ext)
	})

	t.Run("before valid_from there is no mapping", func(t *testing.T) {
		_, ok := table.ToExternal("10.0.0.5:51000", from.Add(-time.Second))
		assert.False(t, ok)
	})

	t.Run("reverse lookup", func(t *testing.T) {
		internal, ok := table.ToInternal("203.0.113.7:40000", from.Add(time.Hour))
		require.True(t, ok)
		assert.Equal(t, "10.0.0.5:51000", internal)
	})

	t.Run("unknown address", func(t *testing.T) {
		_, ok := table.ToExternal("192.168.1.1:1", from.Add(time.Hour))
		assert.False(t, ok)
	})
}
