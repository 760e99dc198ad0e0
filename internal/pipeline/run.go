// Package pipeline orchestrates one hunt run: fetch every source stream
// through the query gateway, normalize, correlate after all streams have
// drained, reconstruct kill chains, score, persist and publish.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/correlation"
	"github.com/kestrelsec/kestrel/internal/feed"
	"github.com/kestrelsec/kestrel/internal/gateway"
	"github.com/kestrelsec/kestrel/internal/killchain"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/normalizer"
	"github.com/kestrelsec/kestrel/internal/repository"
	"github.com/kestrelsec/kestrel/internal/risk"
	"github.com/kestrelsec/kestrel/internal/timenorm"
)

// HuntRequest describes one run. An empty Sources slice means all seven
// families; an empty RunID gets a generated one.
type HuntRequest struct {
	RunID   string
	From    time.Time
	To      time.Time
	Sources []model.SourceType
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Gateway     *gateway.Gateway
	Checkpoints *gateway.CheckpointStore
	Registry    *normalizer.Registry
	Time        *timenorm.Normalizer
	Engine      *correlation.Engine
	Scorer      *risk.Scorer
	Store       repository.Store
	Publisher   *feed.Publisher
	Log         *logging.Logger
}

// Runner executes hunt runs.
type Runner struct {
	deps Deps
}

// NewRunner creates a runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// sourceResult is what one drained (or failed) source worker hands back.
type sourceResult struct {
	source   model.SourceType
	events   []*model.CanonicalEvent
	stats    model.SourceStats
	degraded bool
}

// Hunt runs the full pipeline once. Correlation starts only after every
// stream has drained or failed; incidents from healthy sources are
// produced even when some sources are degraded.
func (r *Runner) Hunt(ctx context.Context, req HuntRequest) (*model.RunReport, []*model.IncidentCandidate, error) {
	started := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = model.AllSources()
	}

	log := r.deps.Log.WithRun(runID)
	log.Info("hunt started", "from", req.From, "to", req.To, "sources", len(sources))

	tr := gateway.TimeRange{From: req.From.UTC(), To: req.To.UTC()}
	results := r.drainSources(ctx, runID, sources, tr, log)

	report := &model.RunReport{
		RunID:     runID,
		From:      tr.From,
		To:        tr.To,
		Sources:   make(map[model.SourceType]model.SourceStats, len(results)),
		StartedAt: started,
	}

	var events []*model.CanonicalEvent
	degraded := make(map[model.SourceType]bool)
	for _, res := range results {
		report.Sources[res.source] = res.stats
		events = append(events, res.events...)
		if res.degraded {
			degraded[res.source] = true
			report.DegradedSources = append(report.DegradedSources, res.source)
		}
	}

	if ctx.Err() != nil {
		report.Status = model.RunAborted
		report.FinishedAt = time.Now().UTC()
		metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
		log.Warn("hunt aborted", "error", ctx.Err())
		return report, nil, ctx.Err()
	}

	clusters := r.deps.Engine.Correlate(events, degraded)
	report.ClusterCount = len(clusters)

	reconstructor := killchain.New(log)
	candidates, err := r.emitIncidents(ctx, clusters, reconstructor, log)
	if err != nil {
		report.Status = model.RunAborted
		report.FinishedAt = time.Now().UTC()
		metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
		return report, candidates, err
	}
	report.IncidentCount = len(candidates)
	report.ReviewCount = len(reconstructor.ReviewList())

	report.Status = model.RunComplete
	if len(report.DegradedSources) > 0 {
		report.Status = model.RunDegraded
	}
	report.FinishedAt = time.Now().UTC()

	metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.RunDuration.Observe(report.FinishedAt.Sub(started).Seconds())

	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.RunCompleted(report); err != nil {
			log.Warn("failed to publish run report", "error", err)
		}
	}

	// Operators read the window in local SOC time.
	log.Info("hunt finished",
		"status", string(report.Status),
		"window_from", r.deps.Time.Display(tr.From).Format(time.RFC3339),
		"window_to", r.deps.Time.Display(tr.To).Format(time.RFC3339),
		"events", len(events),
		"clusters", report.ClusterCount,
		"incidents", report.IncidentCount,
		"review", report.ReviewCount)
	return report, candidates, nil
}

// drainSources fetches and normalizes every source stream concurrently.
// A failed source pauses at its last checkpoint and is reported degraded;
// the other workers keep going.
func (r *Runner) drainSources(ctx context.Context, runID string, sources []model.SourceType, tr gateway.TimeRange, log *logging.Logger) []sourceResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []sourceResult
	)

	for _, source := range sources {
		wg.Add(1)
		go func(source model.SourceType) {
			defer wg.Done()
			res := r.drainOne(ctx, runID, source, tr, log.WithSource(string(source)))
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(source)
	}
	wg.Wait()

	// Fixed order so reports and correlation input are reproducible.
	ordered := make([]sourceResult, 0, len(results))
	for _, src := range model.AllSources() {
		for _, res := range results {
			if res.source == src {
				ordered = append(ordered, res)
			}
		}
	}
	return ordered
}

// drainOne pages through one source stream until done.
func (r *Runner) drainOne(ctx context.Context, runID string, source model.SourceType, tr gateway.TimeRange, log *logging.Logger) sourceResult {
	res := sourceResult{source: source}

	norm := r.deps.Registry.Find(source)
	if norm == nil {
		res.degraded = true
		res.stats.Error = "no normalizer registered"
		log.Error("no normalizer registered")
		return res
	}
	projection := norm.Projection()

	cursor, err := r.deps.Checkpoints.Load(ctx, runID, string(source))
	if err != nil {
		log.Warn("checkpoint load failed, starting from the beginning", "error", err)
		cursor = ""
	}

	for {
		page, err := r.deps.Gateway.Fetch(ctx, source, tr, projection, cursor)
		if err != nil {
			res.degraded = true
			res.stats.Error = err.Error()
			var gerr *gateway.Error
			if errors.As(err, &gerr) {
				log.Error("source stream paused", "kind", string(gerr.Kind), "error", err)
			} else {
				log.Error("source stream failed", "error", err)
			}
			return res
		}

		for _, rec := range page.Records {
			rec.Offset += res.stats.RecordsFetched
			ev, nerr := norm.Normalize(rec)
			if nerr != nil {
				if normalizer.IsTimestampError(nerr) {
					res.stats.Unplaceable++
					r.deps.Time.RecordUnplaceable(source, rec.Offset, rec.StringField("@timestamp"))
					metrics.UnplaceableEvents.WithLabelValues(string(source)).Inc()
				} else {
					res.stats.Skipped++
					metrics.RecordsSkipped.WithLabelValues(string(source), reason(nerr)).Inc()
				}
				log.Debug("record skipped", "offset", rec.Offset, "error", nerr)
				continue
			}
			res.events = append(res.events, ev)
			res.stats.Normalized++
			metrics.EventsNormalized.WithLabelValues(string(source)).Inc()
		}
		res.stats.RecordsFetched += len(page.Records)

		cursor = page.Cursor
		if err := r.deps.Checkpoints.Save(ctx, runID, string(source), cursor); err != nil {
			log.Warn("checkpoint save failed", "error", err)
		}
		if page.Done {
			break
		}
	}

	if err := r.deps.Checkpoints.Clear(ctx, runID, string(source)); err != nil {
		log.Warn("checkpoint clear failed", "error", err)
	}
	log.Info("source drained",
		"fetched", res.stats.RecordsFetched,
		"normalized", res.stats.Normalized,
		"skipped", res.stats.Skipped,
		"unplaceable", res.stats.Unplaceable)
	return res
}

// emitIncidents turns clusters into scored, persisted, published
// incident candidates.
func (r *Runner) emitIncidents(ctx context.Context, clusters []*model.CorrelatedCluster, reconstructor *killchain.Reconstructor, log *logging.Logger) ([]*model.IncidentCandidate, error) {
	candidates := make([]*model.IncidentCandidate, 0, len(clusters))

	for _, cluster := range clusters {
		stages := reconstructor.Sequence(cluster)
		if len(stages) == 0 {
			// Nothing placeable on the kill chain: the reconstructor has
			// queued the cluster for analyst review, keep it off the feed.
			continue
		}
		score, reasons := r.deps.Scorer.Score(cluster)

		refs := make([]model.EventRef, len(cluster.Events))
		for i, ev := range cluster.Events {
			refs[i] = model.EventRef{Source: ev.Source, EventID: ev.EventID}
		}

		version := 1
		if r.deps.Store != nil {
			prior, err := r.deps.Store.Versions(ctx, cluster.ClusterID)
			if err != nil {
				return candidates, err
			}
			version = len(prior) + 1
		}

		candidate := &model.IncidentCandidate{
			ID:                uuid.New().String(),
			ClusterID:         cluster.ClusterID,
			Version:           version,
			Stages:            stages,
			RiskScore:         score,
			EscalationReasons: reasons,
			Confidence:        cluster.Confidence,
			Incomplete:        cluster.Incomplete,
			EventRefs:         refs,
			CreatedAt:         time.Now().UTC(),
		}

		if r.deps.Store != nil {
			if err := r.deps.Store.Insert(ctx, candidate); err != nil {
				return candidates, err
			}
		}
		if r.deps.Publisher != nil {
			if err := r.deps.Publisher.IncidentCreated(candidate); err != nil {
				log.Warn("failed to publish incident", "incident_id", candidate.ID, "error", err)
			}
		}

		metrics.IncidentsEmitted.Inc()
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// reason extracts the skip-reason label for metrics.
func reason(err error) string {
	var nerr *normalizer.Error
	if errors.As(err, &nerr) {
		return string(nerr.Reason)
	}
	return "unknown"
}
