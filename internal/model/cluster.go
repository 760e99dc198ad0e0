package model

import (
	"sort"
	"time"
)

// CorrelatedCluster is a group of canonical events produced by one
// correlation strategy (or a singleton fallthrough). Members are kept
// sorted ascending by OccurredAt with no duplicate event IDs.
type CorrelatedCluster struct {
	ClusterID  string            `json:"cluster_id"`
	Strategy   string            `json:"correlation_strategy"`
	Confidence float64           `json:"confidence"`
	Incomplete bool              `json:"potentially_incomplete,omitempty"`
	Events     []*CanonicalEvent `json:"member_events"`
}

// SortEvents restores the member ordering invariant.
func (c *CorrelatedCluster) SortEvents() {
	sort.SliceStable(c.Events, func(i, j int) bool {
		if c.Events[i].OccurredAt.Equal(c.Events[j].OccurredAt) {
			return c.Events[i].EventID < c.Events[j].EventID
		}
		return c.Events[i].OccurredAt.Before(c.Events[j].OccurredAt)
	})
}

// EventIDs returns the member event IDs in member order.
func (c *CorrelatedCluster) EventIDs() []string {
	ids := make([]string, len(c.Events))
	for i, e := range c.Events {
		ids[i] = e.EventID
	}
	return ids
}

// Stage is a named kill-chain stage.
type Stage string

const (
	StageReconnaissance Stage = "Reconnaissance"
	StageInitialAccess  Stage = "InitialAccess"
	StageExecution      Stage = "Execution"
	StagePersistence    Stage = "PersistenceOrLateralMovement"
	StageImpact         Stage = "ImpactOrExfiltration"
)

// EventRef points back to the raw record behind a member event, for
// dashboard drill-down.
type EventRef struct {
	Source  SourceType `json:"source_type"`
	EventID string     `json:"event_id"`
}

// IncidentCandidate is the only entity handed across the dashboard
// boundary. It is immutable once scored: re-scoring inserts a new Version
// instead of mutating in place.
type IncidentCandidate struct {
	ID                string     `json:"id"`
	ClusterID         string     `json:"cluster_id"`
	Version           int        `json:"version"`
	Stages            []Stage    `json:"kill_chain_stage_sequence"`
	RiskScore         int        `json:"risk_score"`
	EscalationReasons []string   `json:"escalation_reasons"`
	Confidence        float64    `json:"confidence"`
	Incomplete        bool       `json:"potentially_incomplete,omitempty"`
	EventRefs         []EventRef `json:"event_refs"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HasStage reports whether the candidate's sequence contains the stage.
func (ic *IncidentCandidate) HasStage(s Stage) bool {
	for _, st := range ic.Stages {
		if st == s {
			return true
		}
	}
	return false
}
