package heuristics

import (
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

func row(key string, cat domain.Category, value float64) domain.ThresholdConfig {
	return domain.ThresholdConfig{
		ID:            "test-" + key,
		RuleKey:       key,
		Category:      cat,
		Value:         value,
		IsActive:      true,
		EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       1,
		CreatedBy:     "system",
	}
}

// defaultSnapshot mirrors the seeded production values.
func defaultSnapshot() domain.ThresholdSnapshot {
	return domain.ThresholdSnapshot{
		row("gps_cluster_radius_m", domain.CategoryGPS, 50),
		row("gps_cluster_min_samples", domain.CategoryGPS, 3),
		row("gps_cluster_time_window_h", domain.CategoryGPS, 4),
		row("gps_max_accuracy_m", domain.CategoryGPS, 50),
		row("gps_teleport_speed_kmh", domain.CategoryGPS, 120),
		row("gps_weight", domain.CategoryGPS, 25),
		row("speed_superspeceder_pct", domain.CategorySpeed, 25),
		row("speed_speeder_pct", domain.CategorySpeed, 50),
		row("speed_bootstrap_n", domain.CategorySpeed, 30),
		row("speed_weight", domain.CategorySpeed, 25),
		row("straightline_pir_threshold", domain.CategoryStraightline, 0.8),
		row("straightline_min_battery_size", domain.CategoryStraightline, 5),
		row("straightline_entropy_threshold", domain.CategoryStraightline, 0.5),
		row("straightline_min_flagged_batteries", domain.CategoryStraightline, 2),
		row("straightline_weight", domain.CategoryStraightline, 20),
		row("duplicate_exact_threshold", domain.CategoryDuplicate, 1.0),
		row("duplicate_partial_threshold", domain.CategoryDuplicate, 0.7),
		row("duplicate_lookback_days", domain.CategoryDuplicate, 7),
		row("duplicate_weight", domain.CategoryDuplicate, 20),
		row("timing_night_start_hour", domain.CategoryTiming, 23),
		row("timing_night_end_hour", domain.CategoryTiming, 5),
		row("timing_weekend_penalty", domain.CategoryTiming, 5),
		row("timing_weight", domain.CategoryTiming, 10),
		row("severity_low_min", domain.CategoryComposite, 25),
		row("severity_medium_min", domain.CategoryComposite, 50),
		row("severity_high_min", domain.CategoryComposite, 70),
		row("severity_critical_min", domain.CategoryComposite, 85),
	}
}

func baseSubmission() *domain.SubmissionWithContext {
	return &domain.SubmissionWithContext{
		SubmissionID: "sub-1",
		EnumeratorID: "enum-1",
		FormID:       "form-1",
		// Friday 11:00 WAT, normal working hours.
		SubmittedAt: time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC),
	}
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func flagList(details map[string]any) []string {
	flags, _ := details["flags"].([]string)
	return flags
}

func hasFlag(details map[string]any, flag string) bool {
	for _, f := range flagList(details) {
		if f == flag {
			return true
		}
	}
	return false
}
