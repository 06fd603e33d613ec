package engine

import (
	"context"
	"testing"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

type staticConfig struct {
	snapshot domain.ThresholdSnapshot
}

func (s *staticConfig) ActiveSnapshot(ctx context.Context) (domain.ThresholdSnapshot, error) {
	return s.snapshot, nil
}

type memoryStore struct {
	saved []*domain.FraudDetection
}

func (m *memoryStore) SaveDetection(ctx context.Context, d *domain.FraudDetection) error {
	m.saved = append(m.saved, d)
	return nil
}

func row(key string, cat domain.Category, value float64, version int, active bool) domain.ThresholdConfig {
	return domain.ThresholdConfig{
		ID:            "test-" + key,
		RuleKey:       key,
		Category:      cat,
		Value:         value,
		IsActive:      active,
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       version,
		CreatedBy:     "system",
	}
}

func testSnapshot() domain.ThresholdSnapshot {
	return domain.ThresholdSnapshot{
		row("gps_cluster_radius_m", domain.CategoryGPS, 50, 1, true),
		row("gps_cluster_min_samples", domain.CategoryGPS, 3, 1, true),
		row("gps_max_accuracy_m", domain.CategoryGPS, 50, 1, true),
		row("gps_teleport_speed_kmh", domain.CategoryGPS, 120, 1, true),
		row("gps_weight", domain.CategoryGPS, 25, 1, true),
		row("speed_superspeceder_pct", domain.CategorySpeed, 25, 1, true),
		row("speed_speeder_pct", domain.CategorySpeed, 50, 1, true),
		row("speed_bootstrap_n", domain.CategorySpeed, 30, 1, true),
		row("speed_weight", domain.CategorySpeed, 25, 1, true),
		row("straightline_pir_threshold", domain.CategoryStraightline, 0.8, 1, true),
		row("straightline_min_battery_size", domain.CategoryStraightline, 5, 1, true),
		row("straightline_entropy_threshold", domain.CategoryStraightline, 0.5, 1, true),
		row("straightline_min_flagged_batteries", domain.CategoryStraightline, 2, 1, true),
		row("straightline_weight", domain.CategoryStraightline, 20, 1, true),
		row("duplicate_exact_threshold", domain.CategoryDuplicate, 1.0, 1, true),
		row("duplicate_partial_threshold", domain.CategoryDuplicate, 0.7, 1, true),
		row("duplicate_weight", domain.CategoryDuplicate, 20, 1, true),
		row("timing_night_start_hour", domain.CategoryTiming, 23, 1, true),
		row("timing_night_end_hour", domain.CategoryTiming, 5, 1, true),
		row("timing_weekend_penalty", domain.CategoryTiming, 5, 1, true),
		row("timing_weight", domain.CategoryTiming, 10, 1, true),
		row("severity_low_min", domain.CategoryComposite, 25, 1, true),
		row("severity_medium_min", domain.CategoryComposite, 50, 1, true),
		row("severity_high_min", domain.CategoryComposite, 70, 1, true),
		row("severity_critical_min", domain.CategoryComposite, 85, 1, true),
	}
}

func emptySubmission() *domain.SubmissionWithContext {
	return &domain.SubmissionWithContext{
		SubmissionID: "sub-1",
		EnumeratorID: "enum-1",
		FormID:       "form-1",
		// Friday 11:00 WAT.
		SubmittedAt: time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestMapSeverityBoundaries(t *testing.T) {
	cfg := testSnapshot()
	cases := []struct {
		score float64
		want  domain.Severity
	}{
		{0, domain.SeverityClean},
		{24, domain.SeverityClean},
		{25, domain.SeverityLow},
		{49, domain.SeverityLow},
		{50, domain.SeverityMedium},
		{69, domain.SeverityMedium},
		{70, domain.SeverityHigh},
		{84, domain.SeverityHigh},
		{85, domain.SeverityCritical},
		{100, domain.SeverityCritical},
	}

	for _, tc := range cases {
		if got := MapSeverity(tc.score, cfg); got != tc.want {
			t.Errorf("MapSeverity(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestScoreEmptySubmissionIsCleanAndExplained(t *testing.T) {
	store := &memoryStore{}
	e := New(&staticConfig{snapshot: testSnapshot()}, store)

	detection, err := e.Score(context.Background(), emptySubmission())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	if detection.TotalScore != 0 {
		t.Errorf("TotalScore = %v, want 0", detection.TotalScore)
	}
	if detection.Severity != domain.SeverityClean {
		t.Errorf("Severity = %v, want clean", detection.Severity)
	}

	wantReasons := map[domain.Category]string{
		domain.CategoryGPS:          "no_gps_data",
		domain.CategorySpeed:        "no_completion_time",
		domain.CategoryStraightline: "no_batteries_found",
		domain.CategoryDuplicate:    "no_data_or_history",
	}
	for cat, reason := range wantReasons {
		got := detection.Details[cat]["reason"]
		if got != reason {
			t.Errorf("Details[%s].reason = %v, want %s", cat, got, reason)
		}
	}
	// Timing always evaluates; a weekday-daytime submission has no flags.
	if detection.Details[domain.CategoryTiming] == nil {
		t.Errorf("timing details missing")
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d detections, want 1", len(store.saved))
	}
	if store.saved[0].ID != detection.ID {
		t.Errorf("stored detection differs from returned one")
	}
}

func TestScoreStampsConfigVersion(t *testing.T) {
	snapshot := testSnapshot()
	snapshot[0].Version = 7

	store := &memoryStore{}
	e := New(&staticConfig{snapshot: snapshot}, store)

	detection, err := e.Score(context.Background(), emptySubmission())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if detection.ConfigSnapshotVersion != 7 {
		t.Errorf("ConfigSnapshotVersion = %d, want 7", detection.ConfigSnapshotVersion)
	}
}

func TestScoreDisabledCategorySkipsHeuristic(t *testing.T) {
	snapshot := testSnapshot()
	for i := range snapshot {
		if snapshot[i].Category == domain.CategoryTiming {
			snapshot[i].IsActive = false
		}
	}

	e := New(&staticConfig{snapshot: snapshot}, &memoryStore{})

	// Sunday 02:00 WAT would normally score full timing weight.
	sub := emptySubmission()
	sub.SubmittedAt = time.Date(2026, 2, 22, 1, 0, 0, 0, time.UTC)

	detection, err := e.Score(context.Background(), sub)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if detection.Scores.Timing != 0 {
		t.Errorf("Timing = %v, want 0 when category disabled", detection.Scores.Timing)
	}
	if detection.Details[domain.CategoryTiming]["reason"] != "heuristic_disabled" {
		t.Errorf("reason = %v, want heuristic_disabled", detection.Details[domain.CategoryTiming]["reason"])
	}
}

func TestScoreAggregatesComponents(t *testing.T) {
	e := New(&staticConfig{snapshot: testSnapshot()}, &memoryStore{})

	// Sunday 02:00 WAT: night hours flag the timing heuristic at full
	// weight; everything else lacks data and stays zero.
	sub := emptySubmission()
	sub.SubmittedAt = time.Date(2026, 2, 22, 1, 0, 0, 0, time.UTC)

	detection, err := e.Score(context.Background(), sub)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if detection.Scores.Timing != 10 {
		t.Errorf("Timing = %v, want 10", detection.Scores.Timing)
	}
	if detection.TotalScore != 10 {
		t.Errorf("TotalScore = %v, want 10", detection.TotalScore)
	}
	if detection.Severity != domain.SeverityClean {
		t.Errorf("Severity = %v, want clean (10 < low cutoff)", detection.Severity)
	}
}

func TestRescoreInsertsNewDetection(t *testing.T) {
	store := &memoryStore{}
	e := New(&staticConfig{snapshot: testSnapshot()}, store)

	sub := emptySubmission()
	first, err := e.Score(context.Background(), sub)
	if err != nil {
		t.Fatalf("first Score: %v", err)
	}
	second, err := e.Score(context.Background(), sub)
	if err != nil {
		t.Fatalf("second Score: %v", err)
	}

	if first.ID == second.ID {
		t.Errorf("re-score must produce a new detection ID")
	}
	if len(store.saved) != 2 {
		t.Errorf("saved %d detections, want 2", len(store.saved))
	}
}

func TestScoreDeterministicForSameInput(t *testing.T) {
	e := New(&staticConfig{snapshot: testSnapshot()}, &memoryStore{})

	sub := emptySubmission()
	sub.SubmittedAt = time.Date(2026, 2, 22, 1, 0, 0, 0, time.UTC)

	first, err := e.Score(context.Background(), sub)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := e.Score(context.Background(), sub)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if next.TotalScore != first.TotalScore || next.Scores != first.Scores || next.Severity != first.Severity {
			t.Fatalf("run %d diverged: %+v vs %+v", i, next.Scores, first.Scores)
		}
	}
}
