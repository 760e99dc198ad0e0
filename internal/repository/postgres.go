package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/model"
)

// PostgresStore persists incidents in PostgreSQL for multi-run hunts and
// the dashboard API.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, log *logging.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("connected to postgres", "host", cfg.Host, "database", cfg.Database)
	return &PostgresStore{pool: pool, log: log}, nil
}

// Migrate applies pending schema migrations from the migrations directory.
func Migrate(cfg config.PostgresConfig, migrationsPath string, log *logging.Logger) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), cfg.ConnString())
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info("migrations applied")
	return nil
}

// Insert stores a candidate version.
func (s *PostgresStore) Insert(ctx context.Context, c *model.IncidentCandidate) error {
	stages, err := json.Marshal(c.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	reasons, err := json.Marshal(c.EscalationReasons)
	if err != nil {
		return fmt.Errorf("marshal escalation reasons: %w", err)
	}
	refs, err := json.Marshal(c.EventRefs)
	if err != nil {
		return fmt.Errorf("marshal event refs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO incidents (
			id, cluster_id, version, stages, risk_score,
			escalation_reasons, confidence, incomplete, event_refs, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ClusterID, c.Version, stages, c.RiskScore,
		reasons, c.Confidence, c.Incomplete, refs, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Get returns one candidate by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.IncidentCandidate, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, cluster_id, version, stages, risk_score,
		       escalation_reasons, confidence, incomplete, event_refs, created_at
		FROM incidents WHERE id = $1`, id)
	c, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns the latest version per cluster, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*model.IncidentCandidate, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (cluster_id)
		       id, cluster_id, version, stages, risk_score,
		       escalation_reasons, confidence, incomplete, event_refs, created_at
		FROM incidents
		WHERE risk_score >= $1
		ORDER BY cluster_id, version DESC`, filter.MinRiskScore)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []*model.IncidentCandidate
	for rows.Next() {
		c, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		if filter.Stage != "" && !c.HasStage(filter.Stage) {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	// DISTINCT ON forces cluster_id ordering; re-sort newest first here.
	sortByCreatedAtDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Versions returns every stored version for a cluster, oldest first.
func (s *PostgresStore) Versions(ctx context.Context, clusterID string) ([]*model.IncidentCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cluster_id, version, stages, risk_score,
		       escalation_reasons, confidence, incomplete, event_refs, created_at
		FROM incidents WHERE cluster_id = $1
		ORDER BY version ASC`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("list incident versions: %w", err)
	}
	defer rows.Close()

	var out []*model.IncidentCandidate
	for rows.Next() {
		c, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incident versions: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanIncident(row pgx.Row) (*model.IncidentCandidate, error) {
	var c model.IncidentCandidate
	var stages, reasons, refs []byte

	err := row.Scan(&c.ID, &c.ClusterID, &c.Version, &stages, &c.RiskScore,
		&reasons, &c.Confidence, &c.Incomplete, &refs, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stages, &c.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	if err := json.Unmarshal(reasons, &c.EscalationReasons); err != nil {
		return nil, fmt.Errorf("unmarshal escalation reasons: %w", err)
	}
	if err := json.Unmarshal(refs, &c.EventRefs); err != nil {
		return nil, fmt.Errorf("unmarshal event refs: %w", err)
	}
	return &c, nil
}

func sortByCreatedAtDesc(incidents []*model.IncidentCandidate) {
	sort.Slice(incidents, func(i, j int) bool {
		if incidents[i].CreatedAt.Equal(incidents[j].CreatedAt) {
			return incidents[i].ID < incidents[j].ID
		}
		return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
	})
}
