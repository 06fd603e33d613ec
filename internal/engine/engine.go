// Package engine orchestrates a scoring run: one threshold snapshot,
// all heuristics, one immutable FraudDetection record.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/heuristics"
	"github.com/opensurvey/kestrel/internal/stats"
)

// ConfigSource supplies the active threshold snapshot. In production
// this is the cache-aside config service; tests hand in a fixed snapshot.
type ConfigSource interface {
	ActiveSnapshot(ctx context.Context) (domain.ThresholdSnapshot, error)
}

// DetectionStore persists finished detections.
type DetectionStore interface {
	SaveDetection(ctx context.Context, detection *domain.FraudDetection) error
}

// Engine runs the heuristic registry against submissions. Heuristics for
// one submission run concurrently; MaxConcurrency bounds the fan-out.
type Engine struct {
	config     ConfigSource
	store      DetectionStore
	heuristics []heuristics.Heuristic

	// MaxConcurrency bounds concurrent heuristic evaluations per run.
	MaxConcurrency int
}

// New creates an engine over the full heuristic registry.
func New(config ConfigSource, store DetectionStore) *Engine {
	return &Engine{
		config:         config,
		store:          store,
		heuristics:     heuristics.All(),
		MaxConcurrency: 5,
	}
}

// Score evaluates one submission and persists the resulting detection.
// The snapshot is fetched exactly once; every heuristic sees the same
// config, so the stamped version describes the whole run. Re-scoring the
// same submission inserts a new detection rather than updating the old
// one.
func (e *Engine) Score(ctx context.Context, sub *domain.SubmissionWithContext) (*domain.FraudDetection, error) {
	start := time.Now()

	snapshot, err := e.config.ActiveSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load threshold snapshot: %w", err)
	}

	results := e.runHeuristics(sub, snapshot)

	detection := e.assemble(sub, snapshot, results)

	if e.store != nil {
		if err := e.store.SaveDetection(ctx, detection); err != nil {
			return nil, fmt.Errorf("save detection: %w", err)
		}
	}

	slog.Info("submission scored",
		"submission_id", sub.SubmissionID,
		"enumerator_id", sub.EnumeratorID,
		"total_score", detection.TotalScore,
		"severity", detection.Severity,
		"config_version", detection.ConfigSnapshotVersion,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return detection, nil
}

// runHeuristics evaluates every registered heuristic concurrently and
// collects results by category. A panicking heuristic contributes score
// 0 with an error detail instead of killing the run.
func (e *Engine) runHeuristics(sub *domain.SubmissionWithContext, snapshot domain.ThresholdSnapshot) map[domain.Category]domain.ScoreResult {
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[domain.Category]domain.ScoreResult, len(e.heuristics))

	sem := make(chan struct{}, e.MaxConcurrency)

	for _, h := range e.heuristics {
		if snapshot.CategoryDisabled(h.Category()) {
			mu.Lock()
			results[h.Category()] = domain.ScoreResult{
				Score:   0,
				Details: map[string]any{"reason": "heuristic_disabled"},
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(h heuristics.Heuristic) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result := safeEvaluate(h, sub, snapshot)

			mu.Lock()
			results[h.Category()] = result
			mu.Unlock()
		}(h)
	}

	wg.Wait()
	return results
}

func safeEvaluate(h heuristics.Heuristic, sub *domain.SubmissionWithContext, snapshot domain.ThresholdSnapshot) (result domain.ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("heuristic panicked",
				"heuristic", h.Key(),
				"submission_id", sub.SubmissionID,
				"panic", fmt.Sprint(r),
			)
			result = domain.ScoreResult{
				Score:   0,
				Details: map[string]any{"error": fmt.Sprint(r)},
			}
		}
	}()
	return h.Evaluate(sub, snapshot)
}

// assemble builds the immutable detection record from per-category
// results.
func (e *Engine) assemble(sub *domain.SubmissionWithContext, snapshot domain.ThresholdSnapshot, results map[domain.Category]domain.ScoreResult) *domain.FraudDetection {
	scores := domain.ComponentScores{
		GPS:          results[domain.CategoryGPS].Score,
		Speed:        results[domain.CategorySpeed].Score,
		Straightline: results[domain.CategoryStraightline].Score,
		Duplicate:    results[domain.CategoryDuplicate].Score,
		Timing:       results[domain.CategoryTiming].Score,
	}

	total := stats.Round2(math.Min(100, scores.Sum()))

	details := make(map[domain.Category]map[string]any, len(results))
	for cat, r := range results {
		details[cat] = r.Details
	}

	return &domain.FraudDetection{
		ID:                    uuid.New().String(),
		SubmissionID:          sub.SubmissionID,
		EnumeratorID:          sub.EnumeratorID,
		ComputedAt:            time.Now().UTC(),
		ConfigSnapshotVersion: snapshot.MaxVersion(),
		Scores:                scores,
		TotalScore:            total,
		Severity:              MapSeverity(total, snapshot),
		Details:               details,
	}
}

// MapSeverity maps a composite score to its tier. Cutoffs are inclusive:
// a score equal to a tier's minimum lands in that tier.
func MapSeverity(totalScore float64, cfg domain.ThresholdSnapshot) domain.Severity {
	criticalMin := cfg.Value("severity_critical_min", 85)
	highMin := cfg.Value("severity_high_min", 70)
	mediumMin := cfg.Value("severity_medium_min", 50)
	lowMin := cfg.Value("severity_low_min", 25)

	switch {
	case totalScore >= criticalMin:
		return domain.SeverityCritical
	case totalScore >= highMin:
		return domain.SeverityHigh
	case totalScore >= mediumMin:
		return domain.SeverityMedium
	case totalScore >= lowMin:
		return domain.SeverityLow
	}
	return domain.SeverityClean
}
