package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opensurvey/kestrel/internal/domain"
)

type seedRecord struct {
	ruleKey       string
	displayName   string
	category      domain.Category
	value         float64
	weight        *float64
	severityFloor string
	notes         string
}

func weightOf(v float64) *float64 { return &v }

// defaultThresholds is the 27-record default configuration covering all
// heuristic categories plus the composite severity cutoffs. Values come
// from survey-fraud field research calibrated for Nigerian operations.
var defaultThresholds = []seedRecord{
	// GPS clustering
	{
		ruleKey: "gps_cluster_radius_m", displayName: "GPS Cluster Radius (meters)",
		category: domain.CategoryGPS, value: 50,
		notes: "DBSCAN epsilon parameter. Nigerian urban plots ~18x36m. 50m accounts for GPS inaccuracy on TECNO/Infinix devices.",
	},
	{
		ruleKey: "gps_cluster_min_samples", displayName: "GPS Cluster Minimum Samples",
		category: domain.CategoryGPS, value: 3,
		notes: "DBSCAN minSamples. Minimum submissions from same location to form a cluster. 2 is too sensitive (legitimate revisit).",
	},
	{
		ruleKey: "gps_cluster_time_window_h", displayName: "GPS Cluster Time Window (hours)",
		category: domain.CategoryGPS, value: 4,
		notes: "Hours within which to analyze GPS clustering per enumerator. Prevents flagging multi-day returns to same area.",
	},
	{
		ruleKey: "gps_max_accuracy_m", displayName: "GPS Maximum Accuracy (meters)",
		category: domain.CategoryGPS, value: 50,
		notes: "Readings with reported accuracy >50m flagged as unreliable. Budget smartphones typically 5-20m outdoors, >100m indoors.",
	},
	{
		ruleKey: "gps_teleport_speed_kmh", displayName: "GPS Teleportation Speed (km/h)",
		category: domain.CategoryGPS, value: 120,
		notes: "Max plausible travel speed between consecutive interviews. Oyo roads rarely >80km/h. 120 allows for highway segments.",
	},
	{
		ruleKey: "gps_weight", displayName: "GPS Heuristic Weight",
		category: domain.CategoryGPS, value: 25, weight: weightOf(25),
		notes: "Component weight in composite score (max 25 points). Strong physical evidence of fabrication.",
	},

	// Speed run
	{
		ruleKey: "speed_superspeceder_pct", displayName: "Superspeceder Threshold (%)",
		category: domain.CategorySpeed, value: 25,
		notes: "Below 25% of median is physically implausible. Research (PMC11646990) confirms <25% as strong indicator.",
	},
	{
		ruleKey: "speed_speeder_pct", displayName: "Speeder Threshold (%)",
		category: domain.CategorySpeed, value: 50,
		notes: "Below 50% of median is suspicious but possible for experienced enumerators with cooperative respondents.",
	},
	{
		ruleKey: "speed_bootstrap_n", displayName: "Speed Bootstrap Minimum Interviews",
		category: domain.CategorySpeed, value: 30,
		notes: "Minimum interviews needed for empirical median. Uses theoretical minimum below this threshold.",
	},
	{
		ruleKey: "speed_weight", displayName: "Speed Heuristic Weight",
		category: domain.CategorySpeed, value: 25, weight: weightOf(25),
		notes: "Component weight in composite score (max 25 points). Strong behavioral evidence of rushing.",
	},

	// Straight-lining
	{
		ruleKey: "straightline_pir_threshold", displayName: "PIR Threshold",
		category: domain.CategoryStraightline, value: 0.8,
		notes: "Percentage Identical Responses threshold. 80% identical in a battery of 5+ scale questions. Research (PMC8944307).",
	},
	{
		ruleKey: "straightline_min_battery_size", displayName: "Minimum Battery Size",
		category: domain.CategoryStraightline, value: 5,
		notes: "Minimum questions to constitute a battery for straight-lining analysis. <5 not statistically meaningful.",
	},
	{
		ruleKey: "straightline_entropy_threshold", displayName: "Shannon Entropy Threshold (bits)",
		category: domain.CategoryStraightline, value: 0.5,
		notes: "Flag when entropy < 0.5 bits (near-zero diversity). 5-point equal distribution = 2.32 bits; all-same = 0 bits.",
	},
	{
		ruleKey: "straightline_min_flagged_batteries", displayName: "Minimum Flagged Batteries",
		category: domain.CategoryStraightline, value: 2,
		notes: "Require 2+ flagged batteries for full penalty (20 pts). Single battery = partial (10 pts). Reduces false positives.",
	},
	{
		ruleKey: "straightline_weight", displayName: "Straight-lining Heuristic Weight",
		category: domain.CategoryStraightline, value: 20, weight: weightOf(20),
		notes: "Component weight in composite score (max 20 points). Moderate evidence, could be legitimate uniform opinion.",
	},

	// Duplicate response
	{
		ruleKey: "duplicate_exact_threshold", displayName: "Exact Duplicate Match Ratio",
		category: domain.CategoryDuplicate, value: 1.0,
		notes: "Field match ratio for exact duplicate detection. 1.0 = 100% field match = 20 points.",
	},
	{
		ruleKey: "duplicate_partial_threshold", displayName: "Partial Duplicate Match Ratio",
		category: domain.CategoryDuplicate, value: 0.7,
		notes: "Field match ratio for partial duplicate detection. >70% field match = 10 points.",
	},
	{
		ruleKey: "duplicate_lookback_days", displayName: "Duplicate Lookback Window (days)",
		category: domain.CategoryDuplicate, value: 7,
		notes: "Days to look back when comparing submissions for duplicates.",
	},
	{
		ruleKey: "duplicate_weight", displayName: "Duplicate Response Heuristic Weight",
		category: domain.CategoryDuplicate, value: 20, weight: weightOf(20),
		notes: "Component weight in composite score (max 20 points). Strong evidence when triggered.",
	},

	// Off-hours timing
	{
		ruleKey: "timing_night_start_hour", displayName: "Night Window Start Hour",
		category: domain.CategoryTiming, value: 23,
		notes: "Start of off-hours window (local time, 24h format). Submissions between start and end are flagged. WAT (UTC+1).",
	},
	{
		ruleKey: "timing_night_end_hour", displayName: "Night Window End Hour",
		category: domain.CategoryTiming, value: 5,
		notes: "End of off-hours window (local time, 24h format). Submissions before this hour in the morning are flagged.",
	},
	{
		ruleKey: "timing_weekend_penalty", displayName: "Weekend Submission Penalty (points)",
		category: domain.CategoryTiming, value: 5,
		notes: "Points awarded for weekend submissions. Lower than night penalty since weekend fieldwork is common in survey operations.",
	},
	{
		ruleKey: "timing_weight", displayName: "Off-Hours Timing Heuristic Weight",
		category: domain.CategoryTiming, value: 10, weight: weightOf(10),
		notes: "Component weight in composite score (max 10 points). Weakest signal, timing alone is contextual.",
	},

	// Composite severity cutoffs
	{
		ruleKey: "severity_low_min", displayName: "Low Severity Minimum Score",
		category: domain.CategoryComposite, value: 25, severityFloor: "low",
		notes: "Scores 25-49 = low severity. Weekly review batch for supervisor.",
	},
	{
		ruleKey: "severity_medium_min", displayName: "Medium Severity Minimum Score",
		category: domain.CategoryComposite, value: 50, severityFloor: "medium",
		notes: "Scores 50-69 = medium severity. Next-day callback/verification. SLA: 24 hours.",
	},
	{
		ruleKey: "severity_high_min", displayName: "High Severity Minimum Score",
		category: domain.CategoryComposite, value: 70, severityFloor: "high",
		notes: "Scores 70-84 = high severity. Immediate notification, hold payment. SLA: 4 hours.",
	},
	{
		ruleKey: "severity_critical_min", displayName: "Critical Severity Minimum Score",
		category: domain.CategoryComposite, value: 85, severityFloor: "critical",
		notes: "Scores 85-100 = critical severity. Auto-quarantine, block enumerator until cleared. Immediate SLA.",
	},
}

// SeedDefaultThresholds inserts any default threshold whose rule key has
// no current row yet. Existing keys are left untouched, so seeding is
// idempotent and never clobbers admin-tuned values. Returns the number
// of rows inserted.
func (r *SQLRepository) SeedDefaultThresholds(ctx context.Context, actorID string) (int, error) {
	if actorID == "" {
		actorID = "system"
	}

	existing := make(map[string]struct{})
	snapshot, err := r.GetActiveThresholds(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range snapshot {
		existing[t.RuleKey] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	inserted := 0

	for _, seed := range defaultThresholds {
		if _, ok := existing[seed.ruleKey]; ok {
			continue
		}

		t := domain.ThresholdConfig{
			ID:            uuid.New().String(),
			RuleKey:       seed.ruleKey,
			DisplayName:   seed.displayName,
			Category:      seed.category,
			Value:         seed.value,
			Weight:        seed.weight,
			SeverityFloor: seed.severityFloor,
			IsActive:      true,
			EffectiveFrom: now,
			Version:       1,
			CreatedBy:     actorID,
			CreatedAt:     now,
			Notes:         seed.notes,
		}
		if err := insertThresholdTx(ctx, tx, r, &t); err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
