package heuristics

import (
	"testing"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

func historical(id string, rawData map[string]any) domain.HistoricalSubmission {
	return domain.HistoricalSubmission{
		ID:           id,
		EnumeratorID: "enum-1",
		FormID:       "form-1",
		SubmittedAt:  time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC),
		RawData:      rawData,
	}
}

func TestDuplicateResponseNoDataOrHistory(t *testing.T) {
	h := &DuplicateResponse{}

	t.Run("NoRawData", func(t *testing.T) {
		sub := baseSubmission()
		sub.RecentSubmissions = []domain.HistoricalSubmission{historical("prev-1", map[string]any{"q1": "a"})}
		result := h.Evaluate(sub, defaultSnapshot())
		if result.Score != 0 || result.Details["reason"] != "no_data_or_history" {
			t.Errorf("got score %v details %v", result.Score, result.Details)
		}
	})

	t.Run("NoHistory", func(t *testing.T) {
		sub := baseSubmission()
		sub.RawData = map[string]any{"q1": "a"}
		result := h.Evaluate(sub, defaultSnapshot())
		if result.Score != 0 || result.Details["reason"] != "no_data_or_history" {
			t.Errorf("got score %v details %v", result.Score, result.Details)
		}
	})
}

func TestDuplicateResponseExactMatch(t *testing.T) {
	h := &DuplicateResponse{}
	sub := baseSubmission()
	sub.RawData = map[string]any{"q1": "a", "q2": "b", "q3": "c"}
	sub.RecentSubmissions = []domain.HistoricalSubmission{
		historical("prev-1", map[string]any{"q1": "a", "q2": "b", "q3": "c"}),
	}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 20 {
		t.Errorf("score = %v, want full weight 20", result.Score)
	}
	if result.Details["matchType"] != "exact" {
		t.Errorf("matchType = %v, want exact", result.Details["matchType"])
	}
	if result.Details["bestMatchID"] != "prev-1" {
		t.Errorf("bestMatchID = %v, want prev-1", result.Details["bestMatchID"])
	}
}

func TestDuplicateResponsePartialMatch(t *testing.T) {
	h := &DuplicateResponse{}
	sub := baseSubmission()
	// 3 of 4 fields match: ratio 0.75 sits between partial (0.7) and
	// exact (1.0).
	sub.RawData = map[string]any{"q1": "a", "q2": "b", "q3": "c", "q4": "d"}
	sub.RecentSubmissions = []domain.HistoricalSubmission{
		historical("prev-1", map[string]any{"q1": "a", "q2": "b", "q3": "c", "q4": "DIFFERENT"}),
	}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 10 {
		t.Errorf("score = %v, want half weight 10", result.Score)
	}
	if result.Details["matchType"] != "partial" {
		t.Errorf("matchType = %v, want partial", result.Details["matchType"])
	}
}

func TestDuplicateResponseLowSimilarity(t *testing.T) {
	h := &DuplicateResponse{}
	sub := baseSubmission()
	sub.RawData = map[string]any{"q1": "a", "q2": "b", "q3": "c", "q4": "d"}
	sub.RecentSubmissions = []domain.HistoricalSubmission{
		historical("prev-1", map[string]any{"q1": "x", "q2": "y", "q3": "z", "q4": "w"}),
	}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
	if result.Details["matchType"] != "none" {
		t.Errorf("matchType = %v, want none", result.Details["matchType"])
	}
}

func TestDuplicateResponseBestMatchWins(t *testing.T) {
	h := &DuplicateResponse{}
	sub := baseSubmission()
	sub.RawData = map[string]any{"q1": "a", "q2": "b", "q3": "c", "q4": "d"}
	sub.RecentSubmissions = []domain.HistoricalSubmission{
		historical("prev-low", map[string]any{"q1": "a", "q2": "x", "q3": "y", "q4": "z"}),
		historical("prev-high", map[string]any{"q1": "a", "q2": "b", "q3": "c", "q4": "x"}),
	}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Details["bestMatchID"] != "prev-high" {
		t.Errorf("bestMatchID = %v, want prev-high", result.Details["bestMatchID"])
	}
	if result.Details["matchType"] != "partial" {
		t.Errorf("matchType = %v, want partial", result.Details["matchType"])
	}
}

func TestDuplicateResponseSkipsMissingRawData(t *testing.T) {
	h := &DuplicateResponse{}
	sub := baseSubmission()
	sub.RawData = map[string]any{"q1": "a", "q2": "b"}
	sub.RecentSubmissions = []domain.HistoricalSubmission{historical("prev-1", nil)}

	result := h.Evaluate(sub, defaultSnapshot())
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
	if result.Details["matchType"] != "none" {
		t.Errorf("matchType = %v, want none", result.Details["matchType"])
	}
	if result.Details["comparedCount"] != 0 {
		t.Errorf("comparedCount = %v, want 0", result.Details["comparedCount"])
	}
}
