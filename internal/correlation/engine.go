package correlation

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/nat"
)

// Engine runs the fixed strategy table over a batch of canonical events.
// Correlation starts only after every source stream has drained, so the
// output depends on the data and configuration alone, never on fetch
// interleaving.
type Engine struct {
	strategies    []Strategy
	minConfidence float64
	log           *logging.Logger
}

// NewEngine builds an engine with the configured windows and NAT table.
func NewEngine(cfg config.CorrelationConfig, table *nat.Table, log *logging.Logger) *Engine {
	return &Engine{
		strategies:    Strategies(cfg.NATWindow, cfg.EmailWindow, cfg.HostWindow, table),
		minConfidence: cfg.MinConfidence,
		log:           log,
	}
}

// Correlate groups the batch into clusters. degraded names the sources
// whose streams did not fully drain; clusters touching a degraded
// strategy are flagged potentially incomplete. Every event lands in
// exactly one cluster; unmatched events become singletons.
func (e *Engine) Correlate(events []*model.CanonicalEvent, degraded map[model.SourceType]bool) []*model.CorrelatedCluster {
	bySource := make(map[model.SourceType][]*model.CanonicalEvent)
	for _, ev := range events {
		bySource[ev.Source] = append(bySource[ev.Source], ev)
	}
	for _, stream := range bySource {
		sortStream(stream)
	}

	matched := make(map[string]bool, len(events))
	var clusters []*model.CorrelatedCluster

	for i := range e.strategies {
		s := &e.strategies[i]
		incomplete := degraded[s.Left] || degraded[s.Right]
		for _, c := range e.join(s, bySource[s.Left], bySource[s.Right], matched) {
			c.Incomplete = incomplete
			clusters = append(clusters, c)
		}
	}

	for _, src := range model.AllSources() {
		for _, ev := range bySource[src] {
			if matched[ev.EventID] {
				continue
			}
			clusters = append(clusters, &model.CorrelatedCluster{
				ClusterID:  clusterID(StrategySingleton, []string{ev.EventID}),
				Strategy:   StrategySingleton,
				Confidence: singletonConfidence,
				Incomplete: e.counterpartDegraded(ev.Source, degraded),
				Events:     []*model.CanonicalEvent{ev},
			})
		}
	}

	if e.minConfidence > 0 {
		kept := clusters[:0]
		for _, c := range clusters {
			if c.Confidence >= e.minConfidence {
				kept = append(kept, c)
			}
		}
		clusters = kept
	}

	for _, c := range clusters {
		metrics.ClustersEmitted.WithLabelValues(c.Strategy).Inc()
	}
	e.log.Debug("correlation complete", "events", len(events), "clusters", len(clusters))
	return clusters
}

// join runs the sliding-window merge-join for one strategy. For each left
// event it collects every unmatched right event whose key correlates
// within the window (boundary inclusive) into a single cluster. Matched
// events are consumed so no event appears in two clusters.
func (e *Engine) join(s *Strategy, left, right []*model.CanonicalEvent, matched map[string]bool) []*model.CorrelatedCluster {
	var clusters []*model.CorrelatedCluster
	lo := 0

	for _, l := range left {
		if matched[l.EventID] {
			continue
		}
		windowStart := l.OccurredAt.Add(-s.Window)
		windowEnd := l.OccurredAt.Add(s.Window)

		// Advance the lower bound; both streams are sorted ascending.
		for lo < len(right) && right[lo].OccurredAt.Before(windowStart) {
			lo++
		}

		var members []*model.CanonicalEvent
		confidence := 0.0
		for j := lo; j < len(right); j++ {
			r := right[j]
			if r.OccurredAt.After(windowEnd) {
				break
			}
			if matched[r.EventID] {
				continue
			}
			conf, ok := s.Match(l, r)
			if !ok {
				continue
			}
			members = append(members, r)
			if conf > confidence {
				confidence = conf
			}
		}
		if len(members) == 0 {
			continue
		}

		members = append(members, l)
		cluster := &model.CorrelatedCluster{
			Strategy:   s.Name,
			Confidence: confidence,
			Events:     members,
		}
		cluster.SortEvents()
		cluster.ClusterID = clusterID(s.Name, cluster.EventIDs())
		for _, m := range members {
			matched[m.EventID] = true
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// counterpartDegraded reports whether a singleton from src might have had
// a match in a stream that did not drain.
func (e *Engine) counterpartDegraded(src model.SourceType, degraded map[model.SourceType]bool) bool {
	for i := range e.strategies {
		s := &e.strategies[i]
		if s.Left == src && degraded[s.Right] {
			return true
		}
		if s.Right == src && degraded[s.Left] {
			return true
		}
	}
	return false
}

// clusterID derives a stable ID from the strategy and member set, so
// repeated runs over the same data name the same clusters.
func clusterID(strategy string, eventIDs []string) string {
	ids := make([]string, len(eventIDs))
	copy(ids, eventIDs)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strategy + "|" + strings.Join(ids, ",")))
	return fmt.Sprintf("%s-%x", strategy, sum[:8])
}

// sortStream orders a stream by occurrence time with event ID as the
// tiebreaker, the ordering every join below relies on.
func sortStream(events []*model.CanonicalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
}
