package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/kestrel/internal/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func candidate(id, clusterID string, version, score int, createdAt time.Time) *model.IncidentCandidate {
	return &model.IncidentCandidate{
		ID:        id,
		ClusterID: clusterID,
		Version:   version,
		RiskScore: score,
		Stages:    []model.Stage{model.StageInitialAccess},
		CreatedAt: createdAt,
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns what was inserted", func(t *testing.T) {
		s := NewMemoryStore()
		want := candidate("i-1", "c-1", 1, 40, t0)
		require.NoError(t, s.Insert(ctx, want))

		got, err := s.Get(ctx, "i-1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("get unknown id", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list returns only the latest version per cluster", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Insert(ctx, candidate("i-1", "c-1", 1, 40, t0)))
		require.NoError(t, s.Insert(ctx, candidate("i-2", "c-1", 2, 70, t0.Add(time.Hour))))
		require.NoError(t, s.Insert(ctx, candidate("i-3", "c-2", 1, 20, t0.Add(time.Minute))))

		got, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		// Newest first.
		assert.Equal(t, "i-2", got[0].ID)
		assert.Equal(t, "i-3", got[1].ID)
	})

	t.Run("risk and stage filters", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Insert(ctx, candidate("i-1", "c-1", 1, 80, t0)))
		low := candidate("i-2", "c-2", 1, 10, t0)
		low.Stages = []model.Stage{model.StageReconnaissance}
		require.NoError(t, s.Insert(ctx, low))

		got, err := s.List(ctx, Filter{MinRiskScore: 50})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "i-1", got[0].ID)

		got, err = s.List(ctx, Filter{Stage: model.StageReconnaissance})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "i-2", got[0].ID)
	})

	t.Run("limit caps the listing", func(t *testing.T) {
		s := NewMemoryStore()
		for i := 0; i < 5; i++ {
			c := candidate(fmt.Sprintf("i-%d", i), fmt.Sprintf("c-%d", i), 1, 50, t0.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.Insert(ctx, c))
		}
		got, err := s.List(ctx, Filter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("versions come back oldest first", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Insert(ctx, candidate("i-2", "c-1", 2, 70, t0.Add(time.Hour))))
		require.NoError(t, s.Insert(ctx, candidate("i-1", "c-1", 1, 40, t0)))

		versions, err := s.Versions(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 1, versions[0].Version)
		assert.Equal(t, 2, versions[1].Version)
	})
}
