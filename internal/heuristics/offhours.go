package heuristics

import (
	"math"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/stats"
)

// OffHours flags submissions made at implausible local times. Field
// interviews do not happen in the middle of the night; weekend work is
// only mildly unusual, so it carries half the night penalty. The two
// signals sum but never exceed the category weight.
type OffHours struct{}

func (h *OffHours) Key() string               { return "off_hours" }
func (h *OffHours) Category() domain.Category { return domain.CategoryTiming }

func (h *OffHours) Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult {
	nightStart := int(cfg.Value("timing_night_start_hour", 23))
	nightEnd := int(cfg.Value("timing_night_end_hour", 5))
	weekendPenalty := cfg.Value("timing_weekend_penalty", 5)
	weight := cfg.Value("timing_weight", 10)

	watHour := stats.WATHour(sub.SubmittedAt)
	weekend := stats.IsWeekendWAT(sub.SubmittedAt)

	// The night window wraps midnight: [nightStart, 24) and [0, nightEnd).
	night := watHour >= nightStart || watHour < nightEnd

	var score float64
	flags := []string{}

	if night {
		score += weight
		flags = append(flags, "night_hours")
	}
	if weekend {
		score += weekendPenalty
		flags = append(flags, "weekend")
	}

	score = math.Min(score, weight)

	return domain.ScoreResult{
		Score: score,
		Details: map[string]any{
			"watHour":    watHour,
			"watWeekday": stats.WATWeekday(sub.SubmittedAt).String(),
			"isNight":    night,
			"isWeekend":  weekend,
			"flags":      flags,
			"thresholds": map[string]any{
				"nightStartHour": nightStart,
				"nightEndHour":   nightEnd,
				"weekendPenalty": weekendPenalty,
			},
		},
	}
}
