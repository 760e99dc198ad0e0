package timenorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/model"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	zones := map[string]string{
		string(model.SourcePaloAlto):      "UTC",
		string(model.SourceFortiGate):     "Asia/Taipei",
		string(model.SourceSpamFilter):    "Asia/Taipei",
		string(model.SourceTrendEmail):    "Asia/Taipei",
		string(model.SourceTrendApex):     "UTC",
		string(model.SourceWindowsEvents): "Asia/Taipei",
		string(model.SourceManageEngine):  "Asia/Taipei",
	}
	tn, err := New(zones, "Asia/Taipei")
	require.NoError(t, err)
	return tn
}

func TestToUTC(t *testing.T) {
	tn := testNormalizer(t)

	t.Run("local wall clock is shifted by the source zone", func(t *testing.T) {
		// Taipei is UTC+8 with no DST.
		got, err := tn.ToUTC(model.SourceFortiGate, "2026-03-01 08:00:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("explicit offset wins over the configured zone", func(t *testing.T) {
		got, err := tn.ToUTC(model.SourceFortiGate, "2026-03-01T08:00:00+02:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), got)
	})

	t.Run("utc source passes through unchanged", func(t *testing.T) {
		got, err := tn.ToUTC(model.SourcePaloAlto, "2026-03-01 08:00:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), got)
	})

	t.Run("unparseable timestamp returns a typed error", func(t *testing.T) {
		_, err := tn.ToUTC(model.SourceFortiGate, "next tuesday")
		require.Error(t, err)
		var terr *Error
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, model.SourceFortiGate, terr.Source)
		assert.Equal(t, "next tuesday", terr.Raw)
	})

	t.Run("unconfigured source is an error", func(t *testing.T) {
		tn2, err := New(map[string]string{}, "UTC")
		require.NoError(t, err)
		_, err = tn2.ToUTC(model.SourcePaloAlto, "2026-03-01 08:00:00")
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	tn := testNormalizer(t)

	// UTC -> source zone -> UTC must be lossless.
	utc, err := tn.ToUTC(model.SourceFortiGate, "2026-03-01 08:00:00")
	require.NoError(t, err)

	local := tn.InSourceZone(model.SourceFortiGate, utc)
	assert.Equal(t, "2026-03-01 08:00:00", local.Format("2006-01-02 15:04:05"))
	assert.True(t, local.Equal(utc))
}

func TestDisplay(t *testing.T) {
	tn := testNormalizer(t)

	utc := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	display := tn.Display(utc)
	assert.Equal(t, "2026-03-01 08:00:00", display.Format("2006-01-02 15:04:05"))
	assert.True(t, display.Equal(utc))
}

func TestUnplaceableList(t *testing.T) {
	tn := testNormalizer(t)
	assert.Empty(t, tn.UnplaceableList())

	tn.RecordUnplaceable(model.SourceTrendApex, 7, "garbage")
	tn.RecordUnplaceable(model.SourceFortiGate, 12, "also garbage")

	list := tn.UnplaceableList()
	require.Len(t, list, 2)
	assert.Equal(t, model.SourceTrendApex, list[0].Source)
	assert.Equal(t, 7, list[0].Offset)
	assert.Equal(t, "garbage", list[0].Raw)
}

func TestNewRejectsUnknownZone(t *testing.T) {
	_, err := New(map[string]string{string(model.SourcePaloAlto): "Mars/Olympus"}, "UTC")
	assert.Error(t, err)

	_, err = New(map[string]string{"not_a_source": "UTC"}, "UTC")
	assert.Error(t, err)
}
