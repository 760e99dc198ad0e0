package killchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func cluster(actions ...model.Action) *model.CorrelatedCluster {
	c := &model.CorrelatedCluster{ClusterID: "c-1", Strategy: "host_sequence", Confidence: 1.0}
	for i, a := range actions {
		c.Events = append(c.Events, &model.CanonicalEvent{
			EventID:    string(rune('a' + i)),
			Source:     model.SourceWindowsEvents,
			OccurredAt: t0.Add(time.Duration(i) * time.Minute),
			Action:     a,
		})
	}
	return c
}

func TestSequence(t *testing.T) {
	t.Run("actions map onto ordered stages", func(t *testing.T) {
		r := New(logging.Default())
		stages := r.Sequence(cluster(
			model.ActionScan,
			model.ActionAllow,
			model.ActionProcessCreate,
			model.ActionConfigChange,
			model.ActionTransfer,
		))
		assert.Equal(t, []model.Stage{
			model.StageReconnaissance,
			model.StageInitialAccess,
			model.StageExecution,
			model.StagePersistence,
			model.StageImpact,
		}, stages)
		assert.Empty(t, r.ReviewList())
	})

	t.Run("consecutive duplicates collapse", func(t *testing.T) {
		r := New(logging.Default())
		stages := r.Sequence(cluster(
			model.ActionLoginFailed,
			model.ActionLoginFailed,
			model.ActionScan,
			model.ActionLogin,
		))
		assert.Equal(t, []model.Stage{
			model.StageReconnaissance,
			model.StageInitialAccess,
		}, stages)
	})

	t.Run("stages are distinct even when the timeline revisits one", func(t *testing.T) {
		// scan, allow, scan again: the second reconnaissance burst must
		// not re-enter the sequence.
		r := New(logging.Default())
		stages := r.Sequence(cluster(
			model.ActionScan,
			model.ActionAllow,
			model.ActionScan,
		))
		assert.Equal(t, []model.Stage{
			model.StageReconnaissance,
			model.StageInitialAccess,
		}, stages)
	})

	t.Run("stages can regress in the sequence", func(t *testing.T) {
		// Progression is whatever the timeline says, not a monotone walk.
		r := New(logging.Default())
		stages := r.Sequence(cluster(
			model.ActionProcessCreate,
			model.ActionScan,
		))
		assert.Equal(t, []model.Stage{
			model.StageExecution,
			model.StageReconnaissance,
		}, stages)
	})

	t.Run("unmapped actions are ignored when a stage remains", func(t *testing.T) {
		r := New(logging.Default())
		c := cluster(model.ActionDeny, model.ActionLogin)
		stages := r.Sequence(c)

		assert.Equal(t, []model.Stage{model.StageInitialAccess}, stages)
		assert.Empty(t, r.ReviewList())
	})

	t.Run("a cluster with no placeable event goes to the review list", func(t *testing.T) {
		r := New(logging.Default())
		c := cluster(model.ActionDeny)
		stages := r.Sequence(c)

		assert.Nil(t, stages)
		review := r.ReviewList()
		require.Len(t, review, 1)
		assert.Equal(t, "c-1", review[0].ClusterID)
		assert.Equal(t, "host_sequence", review[0].Strategy)
		assert.Equal(t, []string{"a"}, review[0].EventIDs)
	})

	t.Run("review list accumulates across clusters", func(t *testing.T) {
		r := New(logging.Default())
		r.Sequence(cluster(model.ActionDeny))
		r.Sequence(cluster(model.ActionDeny, model.ActionDeny))
		assert.Len(t, r.ReviewList(), 2)
	})
}
