// Package handlers implements the dashboard-facing HTTP API. Incidents
// are the only entity it serves; raw events are reachable only through
// the event refs on an incident.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/common/logging"
	"github.com/kestrelsec/kestrel/internal/model"
	"github.com/kestrelsec/kestrel/internal/pipeline"
	"github.com/kestrelsec/kestrel/internal/repository"
)

// Handler serves the dashboard API.
type Handler struct {
	store  repository.Store
	runner *pipeline.Runner
	log    *logging.Logger

	mu   sync.RWMutex
	runs map[string]*model.RunReport
}

// New creates a handler.
func New(store repository.Store, runner *pipeline.Runner, log *logging.Logger) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		log:    log,
		runs:   make(map[string]*model.RunReport),
	}
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListIncidents returns the latest incident version per cluster.
// Query params: min_risk (int), stage (kill-chain stage), limit (int).
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := repository.Filter{Limit: 100}
	q := r.URL.Query()

	if v := q.Get("min_risk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_risk must be an integer")
			return
		}
		filter.MinRiskScore = n
	}
	if v := q.Get("stage"); v != "" {
		filter.Stage = model.Stage(v)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	incidents, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error("failed to list incidents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// GetIncident returns one incident candidate by ID.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	incident, err := h.store.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	if err != nil {
		h.log.Error("failed to get incident", "incident_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get incident")
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

// ListVersions returns every stored version for a cluster, oldest first.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	clusterID := r.PathValue("cluster_id")
	versions, err := h.store.Versions(r.Context(), clusterID)
	if err != nil {
		h.log.Error("failed to list versions", "cluster_id", clusterID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cluster_id": clusterID,
		"versions":   versions,
	})
}

// huntRequest is the POST /api/v1/hunts body.
type huntRequest struct {
	RunID   string   `json:"run_id,omitempty"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Sources []string `json:"sources,omitempty"`
}

// huntResponse is the synchronous hunt result.
type huntResponse struct {
	Report    *model.RunReport           `json:"report"`
	Incidents []*model.IncidentCandidate `json:"incidents"`
}

// StartHunt runs a hunt synchronously over the requested range.
func (h *Handler) StartHunt(w http.ResponseWriter, r *http.Request) {
	var body huntRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, err := time.Parse(time.RFC3339, body.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, body.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be RFC3339")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	var sources []model.SourceType
	for _, s := range body.Sources {
		src := model.SourceType(s)
		if !src.IsValid() {
			writeError(w, http.StatusBadRequest, "unknown source type: "+s)
			return
		}
		sources = append(sources, src)
	}

	report, incidents, err := h.runner.Hunt(r.Context(), pipeline.HuntRequest{
		RunID:   body.RunID,
		From:    from,
		To:      to,
		Sources: sources,
	})
	if err != nil {
		h.log.Error("hunt failed", "error", err)
		// A degraded or aborted report is still worth returning.
		if report == nil {
			writeError(w, http.StatusInternalServerError, "hunt failed")
			return
		}
	}
	h.mu.Lock()
	h.runs[report.RunID] = report
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, huntResponse{Report: report, Incidents: incidents})
}

// GetHunt returns the report of a previously triggered run.
func (h *Handler) GetHunt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.mu.RLock()
	report, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
