package heuristics

import (
	"math"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/stats"
)

// Per-question minimum answer times in seconds, by question class.
const (
	minSecondsClosed  = 3
	minSecondsOpen    = 8
	minSecondsNumeric = 4
	baseOverheadSecs  = 30
	noSchemaFloorSecs = 60
)

// SpeedRun detects implausibly fast completions. The reference time is
// the empirical median of the enumerator's recent same-form completions
// once enough history exists; before that it falls back to a theoretical
// minimum derived from the form's question mix.
type SpeedRun struct{}

func (h *SpeedRun) Key() string               { return "speed_run" }
func (h *SpeedRun) Category() domain.Category { return domain.CategorySpeed }

func (h *SpeedRun) Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult {
	if sub.CompletionTimeSeconds == nil {
		return domain.ScoreResult{Score: 0, Details: map[string]any{"reason": "no_completion_time"}}
	}
	completionTime := float64(*sub.CompletionTimeSeconds)

	// Percentage thresholds are stored as whole numbers (25 means 25%).
	superspecederPct := cfg.Value("speed_superspeceder_pct", 25) / 100
	speederPct := cfg.Value("speed_speeder_pct", 50) / 100
	bootstrapN := int(cfg.Value("speed_bootstrap_n", 30))
	weight := cfg.Value("speed_weight", 25)

	var historicalTimes []float64
	for _, s := range sub.RecentSubmissions {
		if s.CompletionTimeSeconds != nil && *s.CompletionTimeSeconds > 0 && s.FormID == sub.FormID {
			historicalTimes = append(historicalTimes, float64(*s.CompletionTimeSeconds))
		}
	}

	var referenceTime float64
	var referenceType string
	if len(historicalTimes) >= bootstrapN {
		referenceTime = stats.Median(historicalTimes)
		referenceType = "empirical_median"
	} else {
		referenceTime = TheoreticalMinimum(sub.FormSchema)
		referenceType = "theoretical_minimum"
	}

	if referenceTime <= 0 {
		return domain.ScoreResult{Score: 0, Details: map[string]any{
			"reason":        "invalid_reference_time",
			"referenceTime": referenceTime,
			"referenceType": referenceType,
		}}
	}

	ratio := completionTime / referenceTime
	var score float64
	tier := "normal"

	if ratio < superspecederPct {
		score = weight
		tier = "superspeceder"
	} else if ratio < speederPct {
		score = math.Round(weight * 0.48)
		tier = "speeder"
	}

	return domain.ScoreResult{
		Score: score,
		Details: map[string]any{
			"completionTimeSeconds": *sub.CompletionTimeSeconds,
			"referenceTime":         math.Round(referenceTime),
			"referenceType":         referenceType,
			"ratio":                 stats.Round2(ratio),
			"tier":                  tier,
			"historicalSampleSize":  len(historicalTimes),
			"thresholds": map[string]any{
				"superspecederPct": superspecederPct * 100,
				"speederPct":       speederPct * 100,
				"bootstrapN":       bootstrapN,
			},
		},
	}
}

// TheoreticalMinimum estimates the fastest honest completion time for a
// form: 3s per closed question, 8s per open, 4s per numeric, plus 30s
// overhead, never below 30s. A missing schema yields a 60s floor.
func TheoreticalMinimum(schema *domain.FormSchema) float64 {
	if schema == nil {
		return noSchemaFloorSecs
	}

	var secs float64 = baseOverheadSecs
	for _, section := range schema.Sections {
		for _, q := range section.Questions {
			switch q.Class() {
			case domain.QuestionClassOpen:
				secs += minSecondsOpen
			case domain.QuestionClassNumeric:
				secs += minSecondsNumeric
			default:
				secs += minSecondsClosed
			}
		}
	}

	return math.Max(secs, baseOverheadSecs)
}
