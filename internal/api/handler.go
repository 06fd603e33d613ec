package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/engine"
	"github.com/opensurvey/kestrel/internal/repository"
	"github.com/opensurvey/kestrel/internal/thresholds"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	thresholds *thresholds.Service
	engine     *engine.Engine
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, thresholdSvc *thresholds.Service, eng *engine.Engine, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		thresholds: thresholdSvc,
		engine:     eng,
		version:    version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListThresholds returns the active threshold configuration grouped by
// heuristic category.
func (h *Handler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.thresholds.ByCategory(r.Context())
	if err != nil {
		slog.Error("failed to load thresholds", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load thresholds",
		})
		return
	}

	writeJSON(w, http.StatusOK, grouped)
}

// ThresholdHistory returns past versions of one rule key, newest first.
func (h *Handler) ThresholdHistory(w http.ResponseWriter, r *http.Request) {
	ruleKey := chi.URLParam(r, "ruleKey")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer between 1 and 200",
			})
			return
		}
		limit = parsed
	}

	history, err := h.thresholds.History(r.Context(), ruleKey, limit)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "unknown rule key: " + ruleKey,
			})
			return
		}
		slog.Error("failed to load threshold history", "rule_key", ruleKey, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load threshold history",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ruleKey": ruleKey,
		"history": history,
	})
}

// UpdateThresholdRequest is the request body for PATCH /fraud-thresholds/{ruleKey}.
type UpdateThresholdRequest struct {
	ThresholdValue *float64 `json:"thresholdValue"`
	Notes          string   `json:"notes,omitempty"`
}

// UpdateThreshold creates a new version of a threshold. The previous
// version is closed, never overwritten.
func (h *Handler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleKey := chi.URLParam(r, "ruleKey")

	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required",
		})
		return
	}

	var req UpdateThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ThresholdValue == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "thresholdValue is required and must be numeric",
		})
		return
	}

	var opts *domain.ThresholdUpdateOptions
	if req.Notes != "" {
		opts = &domain.ThresholdUpdateOptions{Notes: req.Notes}
	}

	updated, err := h.thresholds.Update(ctx, ruleKey, *req.ThresholdValue, actorID, opts)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "unknown rule key: " + ruleKey,
			})
			return
		}
		slog.Error("failed to update threshold", "rule_key", ruleKey, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update threshold",
		})
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ScoreSubmission scores one pre-joined submission synchronously and
// returns the persisted detection. Re-posting the same submission
// produces a new detection row.
func (h *Handler) ScoreSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID := chi.URLParam(r, "id")

	var sub domain.SubmissionWithContext
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if sub.SubmissionID == "" {
		sub.SubmissionID = submissionID
	}
	if sub.SubmissionID != submissionID {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "submission id in path and body do not match",
		})
		return
	}
	if sub.EnumeratorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "enumeratorId is required",
		})
		return
	}

	detection, err := h.engine.Score(ctx, &sub)
	if err != nil {
		slog.Error("scoring failed", "submission_id", submissionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusCreated, detection)
}

// GetDetection retrieves a detection record by ID.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	detectionID := chi.URLParam(r, "id")

	detection, err := h.repo.GetDetection(ctx, detectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "detection not found",
			})
			return
		}
		slog.Error("failed to get detection", "id", detectionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get detection",
		})
		return
	}

	writeJSON(w, http.StatusOK, detection)
}

// ListDetections returns detections for the review surface, newest first.
func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := domain.DetectionFilter{
		EnumeratorID: query.Get("enumeratorId"),
		Limit:        50,
	}

	if raw := query.Get("severity"); raw != "" {
		severity := domain.Severity(raw)
		if !domain.ValidSeverity(severity) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown severity: " + raw,
			})
			return
		}
		filter.Severity = severity
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be an integer between 1 and 200",
			})
			return
		}
		filter.Limit = limit
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "offset must be a non-negative integer",
			})
			return
		}
		filter.Offset = offset
	}

	detections, err := h.repo.ListDetections(ctx, filter)
	if err != nil {
		slog.Error("failed to list detections", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list detections",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
		"count":      len(detections),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
