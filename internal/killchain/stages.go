// Package killchain orders a correlated cluster's events into a
// kill-chain stage sequence. The mapping is deliberately coarse: five
// stages are enough for triage ordering, and a cluster the table cannot
// place at all goes to an analyst review list instead of the incident
// feed.
package killchain

import (
	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/model"
)

// stageFor maps a canonical action to its kill-chain stage. Actions
// without a row are left unstaged rather than guessed.
var stageFor = map[model.Action]model.Stage{
	model.ActionScan:          model.StageReconnaissance,
	model.ActionLoginFailed:   model.StageReconnaissance,
	model.ActionAllow:         model.StageInitialAccess,
	model.ActionLogin:         model.StageInitialAccess,
	model.ActionAlert:         model.StageExecution,
	model.ActionProcessCreate: model.StageExecution,
	model.ActionQuarantine:    model.StageExecution,
	model.ActionConfigChange:  model.StagePersistence,
	model.ActionLockout:       model.StagePersistence,
	model.ActionTransfer:      model.StageImpact,
}

// ReviewEntry records a cluster dropped from the incident feed because
// none of its events could be placed on the kill chain.
type ReviewEntry struct {
	ClusterID string   `json:"cluster_id"`
	Strategy  string   `json:"correlation_strategy"`
	EventIDs  []string `json:"event_ids"`
}

// Reconstructor builds stage sequences and accumulates the analyst
// review list for one run.
type Reconstructor struct {
	log    *logging.Logger
	review []ReviewEntry
}

// New creates a reconstructor.
func New(log *logging.Logger) *Reconstructor {
	return &Reconstructor{log: log}
}

// Sequence walks the cluster's members in occurrence order and returns
// the distinct stages in first-occurrence order. A nil result means no
// event was placeable; the cluster is queued for review and must not be
// emitted as an incident.
func (r *Reconstructor) Sequence(cluster *model.CorrelatedCluster) []model.Stage {
	var stages []model.Stage
	seen := make(map[model.Stage]bool, len(stageFor))
	for _, ev := range cluster.Events {
		stage, ok := stageFor[ev.Action]
		if !ok {
			r.log.Debug("event left unstaged",
				"cluster_id", cluster.ClusterID,
				"event_id", ev.EventID,
				"action", string(ev.Action))
			continue
		}
		if seen[stage] {
			continue
		}
		seen[stage] = true
		stages = append(stages, stage)
	}

	if len(stages) == 0 {
		r.review = append(r.review, ReviewEntry{
			ClusterID: cluster.ClusterID,
			Strategy:  cluster.Strategy,
			EventIDs:  cluster.EventIDs(),
		})
		r.log.Info("cluster routed to review list",
			"cluster_id", cluster.ClusterID,
			"members", len(cluster.Events))
		return nil
	}
	return stages
}

// ReviewList returns the clusters no stage could be assigned to, in the
// order they were encountered.
func (r *Reconstructor) ReviewList() []ReviewEntry {
	return r.review
}
