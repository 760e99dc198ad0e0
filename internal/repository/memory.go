package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/kestrelsec/kestrel/internal/model"
)

// MemoryStore is the default repository for single-shot hunts and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*model.IncidentCandidate
	byCluster map[string][]*model.IncidentCandidate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*model.IncidentCandidate),
		byCluster: make(map[string][]*model.IncidentCandidate),
	}
}

// Insert stores a candidate version.
func (s *MemoryStore) Insert(_ context.Context, candidate *model.IncidentCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[candidate.ID] = candidate
	s.byCluster[candidate.ClusterID] = append(s.byCluster[candidate.ClusterID], candidate)
	return nil
}

// Get returns one candidate by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.IncidentCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidate, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return candidate, nil
}

// List returns the latest version per cluster, newest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*model.IncidentCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.IncidentCandidate
	for _, versions := range s.byCluster {
		latest := versions[0]
		for _, v := range versions[1:] {
			if v.Version > latest.Version {
				latest = v
			}
		}
		if latest.RiskScore < filter.MinRiskScore {
			continue
		}
		if filter.Stage != "" && !latest.HasStage(filter.Stage) {
			continue
		}
		out = append(out, latest)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Versions returns every stored version for a cluster, oldest first.
func (s *MemoryStore) Versions(_ context.Context, clusterID string) ([]*model.IncidentCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.byCluster[clusterID]
	out := make([]*model.IncidentCandidate, len(versions))
	copy(out, versions)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}
