package heuristics

import (
	"math"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/stats"
)

// battery is a run of scale questions in one section. Batteries never
// span sections, which keeps legitimately uniform short grids from
// being merged into one long suspicious one.
type battery struct {
	sectionID     string
	questionNames []string
}

// StraightLining detects uniform answering across scale-question
// batteries. The primary signal is the modal answer fraction (PIR) per
// battery; long identical runs and low answer entropy act as secondary
// boosts that can never exceed the category weight.
type StraightLining struct{}

func (h *StraightLining) Key() string               { return "straight_lining" }
func (h *StraightLining) Category() domain.Category { return domain.CategoryStraightline }

func (h *StraightLining) Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult {
	pirThreshold := cfg.Value("straightline_pir_threshold", 0.8)
	minBatterySize := int(cfg.Value("straightline_min_battery_size", 5))
	entropyThreshold := cfg.Value("straightline_entropy_threshold", 0.5)
	minFlaggedBatteries := int(cfg.Value("straightline_min_flagged_batteries", 2))
	weight := cfg.Value("straightline_weight", 20)

	batteries := identifyBatteries(sub.FormSchema, minBatterySize)
	if len(batteries) == 0 {
		return domain.ScoreResult{Score: 0, Details: map[string]any{
			"reason":       "no_batteries_found",
			"batteryCount": 0,
		}}
	}

	type batteryResult struct {
		SectionID     string  `json:"sectionId"`
		QuestionCount int     `json:"questionCount"`
		PIR           float64 `json:"pir"`
		LIS           int     `json:"lis"`
		Entropy       float64 `json:"entropy"`
		Flagged       bool    `json:"flagged"`
	}

	var results []batteryResult
	flaggedCount := 0

	for _, b := range batteries {
		var responses []any
		for _, name := range b.questionNames {
			if v, ok := sub.RawData[name]; ok && v != nil && v != "" {
				responses = append(responses, v)
			}
		}
		if len(responses) < minBatterySize {
			continue
		}

		pir := stats.ModalFraction(responses)
		flagged := pir >= pirThreshold
		if flagged {
			flaggedCount++
		}

		results = append(results, batteryResult{
			SectionID:     b.sectionID,
			QuestionCount: len(responses),
			PIR:           stats.Round2(pir),
			LIS:           stats.LongestRun(responses),
			Entropy:       stats.ShannonEntropy(responses),
			Flagged:       flagged,
		})
	}

	var score float64
	flags := []string{}

	if flaggedCount >= minFlaggedBatteries {
		score = weight
		flags = append(flags, "multi_battery_straight_lining")
	} else if flaggedCount == 1 {
		score = weight * 0.5
		flags = append(flags, "single_battery_straight_lining")
	}

	maxLIS := 0
	for _, r := range results {
		if r.LIS > maxLIS {
			maxLIS = r.LIS
		}
	}
	if maxLIS >= 8 && score < weight {
		score = math.Min(score+weight*0.25, weight)
		flags = append(flags, "long_identical_string")
	}

	minEntropy := math.Inf(1)
	for _, r := range results {
		if r.Entropy < minEntropy {
			minEntropy = r.Entropy
		}
	}
	if minEntropy < entropyThreshold && score < weight {
		score = math.Min(score+weight*0.25, weight)
		flags = append(flags, "low_entropy")
	}

	score = stats.Round2(math.Min(score, weight))

	details := map[string]any{
		"batteryCount":      len(batteries),
		"analyzedBatteries": len(results),
		"flaggedBatteries":  flaggedCount,
		"maxLIS":            maxLIS,
		"batteryResults":    results,
		"flags":             flags,
		"thresholds": map[string]any{
			"pirThreshold":        pirThreshold,
			"minBatterySize":      minBatterySize,
			"entropyThreshold":    entropyThreshold,
			"minFlaggedBatteries": minFlaggedBatteries,
		},
	}
	if math.IsInf(minEntropy, 1) {
		details["minEntropy"] = nil
	} else {
		details["minEntropy"] = minEntropy
	}

	return domain.ScoreResult{Score: score, Details: details}
}

// identifyBatteries collects per-section groups of scale questions of at
// least minBatterySize.
func identifyBatteries(schema *domain.FormSchema, minBatterySize int) []battery {
	if schema == nil {
		return nil
	}

	var batteries []battery
	for _, section := range schema.Sections {
		var names []string
		for _, q := range section.Questions {
			if q.IsScale() {
				names = append(names, q.Name)
			}
		}
		if len(names) >= minBatterySize {
			batteries = append(batteries, battery{sectionID: section.ID, questionNames: names})
		}
	}
	return batteries
}
