// Package repository persists incident candidates. Candidates are
// insert-only: re-scoring a cluster inserts the next version rather than
// mutating a stored row.
package repository

import (
	"context"
	"errors"

	"github.com/kestrelsec/kestrel/internal/model"
)

// ErrNotFound is returned when no incident matches the lookup.
var ErrNotFound = errors.New("incident not found")

// Filter narrows incident listings.
type Filter struct {
	MinRiskScore int
	Stage        model.Stage
	Limit        int
}

// Store is the incident repository boundary. Implementations must treat
// stored candidates as immutable.
type Store interface {
	// Insert stores a new incident candidate version.
	Insert(ctx context.Context, candidate *model.IncidentCandidate) error
	// Get returns one candidate by ID.
	Get(ctx context.Context, id string) (*model.IncidentCandidate, error)
	// List returns the latest version per cluster, newest first,
	// narrowed by the filter.
	List(ctx context.Context, filter Filter) ([]*model.IncidentCandidate, error)
	// Versions returns every stored version for a cluster, oldest first.
	Versions(ctx context.Context, clusterID string) ([]*model.IncidentCandidate, error)
	// Close releases the underlying connection.
	Close()
}
