package heuristics

import (
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/stats"
)

// DuplicateResponse detects copied answer sets by comparing the
// submission's answers against every recent submission from the same
// enumerator and scoring the best field-match ratio found. The window
// is not restricted to one form: fabricators reuse answers across
// questionnaires too.
type DuplicateResponse struct{}

func (h *DuplicateResponse) Key() string               { return "duplicate_response" }
func (h *DuplicateResponse) Category() domain.Category { return domain.CategoryDuplicate }

func (h *DuplicateResponse) Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult {
	if len(sub.RawData) == 0 || len(sub.RecentSubmissions) == 0 {
		return domain.ScoreResult{Score: 0, Details: map[string]any{"reason": "no_data_or_history"}}
	}

	exactThreshold := cfg.Value("duplicate_exact_threshold", 1.0)
	partialThreshold := cfg.Value("duplicate_partial_threshold", 0.7)
	weight := cfg.Value("duplicate_weight", 20)

	var bestRatio float64
	var bestMatchID string
	compared := 0

	for _, prev := range sub.RecentSubmissions {
		if prev.RawData == nil {
			continue
		}
		compared++
		ratio := stats.FieldMatchRatio(sub.RawData, prev.RawData)
		if ratio > bestRatio {
			bestRatio = ratio
			bestMatchID = prev.ID
		}
	}

	var score float64
	matchType := "none"

	if bestRatio >= exactThreshold {
		score = weight
		matchType = "exact"
	} else if bestRatio >= partialThreshold {
		score = weight * 0.5
		matchType = "partial"
	}

	return domain.ScoreResult{
		Score: score,
		Details: map[string]any{
			"bestMatchRatio":    stats.Round2(bestRatio),
			"bestMatchID":       bestMatchID,
			"matchType":         matchType,
			"comparedCount":     compared,
			"historyWindowSize": len(sub.RecentSubmissions),
			"thresholds": map[string]any{
				"exactThreshold":   exactThreshold,
				"partialThreshold": partialThreshold,
			},
		},
	}
}
