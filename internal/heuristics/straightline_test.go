package heuristics

import (
	"fmt"
	"testing"

	"github.com/opensurvey/kestrel/internal/domain"
)

// scaleSection builds a section of n select_one questions named
// prefix1..prefixN.
func scaleSection(id, prefix string, n int) domain.FormSection {
	section := domain.FormSection{ID: id}
	for i := 1; i <= n; i++ {
		section.Questions = append(section.Questions, domain.FormQuestion{
			Name: fmt.Sprintf("%s%d", prefix, i),
			Type: "select_one",
		})
	}
	return section
}

// fillAnswers sets prefix1..prefixN to the given values, cycling when
// values is shorter than n.
func fillAnswers(data map[string]any, prefix string, n int, values ...string) {
	for i := 1; i <= n; i++ {
		data[fmt.Sprintf("%s%d", prefix, i)] = values[(i-1)%len(values)]
	}
}

func TestStraightLiningNoBatteries(t *testing.T) {
	h := &StraightLining{}

	t.Run("NoSchema", func(t *testing.T) {
		result := h.Evaluate(baseSubmission(), defaultSnapshot())
		if result.Score != 0 {
			t.Errorf("score = %v, want 0", result.Score)
		}
		if result.Details["reason"] != "no_batteries_found" {
			t.Errorf("reason = %v, want no_batteries_found", result.Details["reason"])
		}
	})

	t.Run("SectionTooSmall", func(t *testing.T) {
		sub := baseSubmission()
		sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{scaleSection("s1", "q", 4)}}
		result := h.Evaluate(sub, defaultSnapshot())
		if result.Details["reason"] != "no_batteries_found" {
			t.Errorf("4 scale questions must not form a battery, got %v", result.Details)
		}
	})
}

func TestStraightLiningTwoFlaggedBatteriesFullWeight(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{
		scaleSection("s1", "a", 5),
		scaleSection("s2", "b", 5),
	}}
	sub.RawData = map[string]any{}
	fillAnswers(sub.RawData, "a", 5, "3")
	fillAnswers(sub.RawData, "b", 5, "4")

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 20 {
		t.Errorf("score = %v, want full weight 20", result.Score)
	}
	if !hasFlag(result.Details, "multi_battery_straight_lining") {
		t.Errorf("expected multi_battery_straight_lining flag, got %v", flagList(result.Details))
	}
}

func TestStraightLiningSingleFlaggedBatteryHalfWeight(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{
		scaleSection("s1", "a", 5),
		scaleSection("s2", "b", 5),
	}}
	sub.RawData = map[string]any{}
	// PIR 0.8 flags the battery but entropy stays above the boost
	// threshold, isolating the half-weight rule.
	fillAnswers(sub.RawData, "a", 5, "3", "3", "3", "3", "1")
	fillAnswers(sub.RawData, "b", 5, "1", "2", "3", "4", "5")

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 10 {
		t.Errorf("score = %v, want half weight 10", result.Score)
	}
	if !hasFlag(result.Details, "single_battery_straight_lining") {
		t.Errorf("expected single_battery_straight_lining flag, got %v", flagList(result.Details))
	}
}

func TestStraightLiningVariedAnswersScoreZero(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{scaleSection("s1", "a", 5)}}
	sub.RawData = map[string]any{}
	fillAnswers(sub.RawData, "a", 5, "1", "2", "3", "4", "5")

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
	if len(flagList(result.Details)) != 0 {
		t.Errorf("expected no flags, got %v", flagList(result.Details))
	}
}

func TestStraightLiningLongRunBoost(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{scaleSection("s1", "a", 12)}}
	sub.RawData = map[string]any{}
	// 8 identical then 4 varied: PIR = 8/12 < 0.8, but LIS = 8.
	fillAnswers(sub.RawData, "a", 8, "3")
	sub.RawData["a9"] = "1"
	sub.RawData["a10"] = "2"
	sub.RawData["a11"] = "4"
	sub.RawData["a12"] = "5"

	result := h.Evaluate(sub, defaultSnapshot())
	if !hasFlag(result.Details, "long_identical_string") {
		t.Fatalf("expected long_identical_string flag, got %v", flagList(result.Details))
	}
	if result.Score != 5 {
		t.Errorf("score = %v, want LIS boost of 5 (25%% of weight)", result.Score)
	}
}

func TestStraightLiningUnansweredBatterySkipped(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{scaleSection("s1", "a", 5)}}
	// Only two questions answered, below the minimum battery size.
	sub.RawData = map[string]any{"a1": "3", "a2": "3"}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
	if result.Details["analyzedBatteries"] != 0 {
		t.Errorf("analyzedBatteries = %v, want 0", result.Details["analyzedBatteries"])
	}
}

func TestStraightLiningScoreNeverExceedsWeight(t *testing.T) {
	h := &StraightLining{}
	sub := baseSubmission()
	sub.FormSchema = &domain.FormSchema{Sections: []domain.FormSection{
		scaleSection("s1", "a", 10),
		scaleSection("s2", "b", 10),
	}}
	sub.RawData = map[string]any{}
	// Both batteries fully uniform: full weight plus both boost
	// conditions hold, score must still cap at 20.
	fillAnswers(sub.RawData, "a", 10, "3")
	fillAnswers(sub.RawData, "b", 10, "3")

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 20 {
		t.Errorf("score = %v, want cap at weight 20", result.Score)
	}
}
