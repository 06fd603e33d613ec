// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"errors"
	"time"
)

// ErrRuleNotFound is returned when a threshold update targets a rule key
// that has no current version.
var ErrRuleNotFound = errors.New("rule key not found")

// Category identifies the heuristic a threshold belongs to.
// The composite category holds severity cutoffs rather than heuristic parameters.
type Category string

const (
	CategoryGPS          Category = "gps"
	CategorySpeed        Category = "speed"
	CategoryStraightline Category = "straightline"
	CategoryDuplicate    Category = "duplicate"
	CategoryTiming       Category = "timing"
	CategoryComposite    Category = "composite"
)

// HeuristicCategories lists the five scoring categories whose weights
// must sum to 100. Composite is excluded: its rows encode severity cutoffs.
var HeuristicCategories = []Category{
	CategoryGPS,
	CategorySpeed,
	CategoryStraightline,
	CategoryDuplicate,
	CategoryTiming,
}

// Severity is the tier derived from a composite score.
type Severity string

const (
	SeverityClean    Severity = "clean"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity tier.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityClean, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ThresholdConfig is one tunable parameter, temporally versioned.
// A rule key is updated by closing the current row (EffectiveUntil set)
// and inserting a new one with Version+1. History is never deleted, so a
// detection stamped with a config version can always be re-audited against
// the thresholds that produced it.
type ThresholdConfig struct {
	ID             string     `json:"id"`
	RuleKey        string     `json:"ruleKey"`
	DisplayName    string     `json:"displayName"`
	Category       Category   `json:"category"`
	Value          float64    `json:"value"`
	Weight         *float64   `json:"weight,omitempty"`
	SeverityFloor  string     `json:"severityFloor,omitempty"`
	IsActive       bool       `json:"isActive"`
	EffectiveFrom  time.Time  `json:"effectiveFrom"`
	EffectiveUntil *time.Time `json:"effectiveUntil,omitempty"`
	Version        int        `json:"version"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	Notes          string     `json:"notes,omitempty"`
}

// Current reports whether this row is the current version of its rule key.
func (t *ThresholdConfig) Current() bool {
	return t.EffectiveUntil == nil
}

// ThresholdSnapshot is the set of current threshold rows in effect at
// scoring time. Heuristics read only from the snapshot they are handed,
// never from storage.
type ThresholdSnapshot []ThresholdConfig

// Value returns the active value for a rule key, or def when the key is
// missing or its current row is inactive.
func (s ThresholdSnapshot) Value(ruleKey string, def float64) float64 {
	for i := range s {
		if s[i].RuleKey == ruleKey && s[i].IsActive {
			return s[i].Value
		}
	}
	return def
}

// ByCategory groups the snapshot for administration surfaces.
func (s ThresholdSnapshot) ByCategory() map[Category][]ThresholdConfig {
	grouped := make(map[Category][]ThresholdConfig)
	for _, t := range s {
		grouped[t.Category] = append(grouped[t.Category], t)
	}
	return grouped
}

// MaxVersion returns the highest version among active rows, used to stamp
// detections with the config snapshot version. Returns 1 for an empty
// snapshot so detections are never stamped with zero.
func (s ThresholdSnapshot) MaxVersion() int {
	max := 1
	for i := range s {
		if s[i].IsActive && s[i].Version > max {
			max = s[i].Version
		}
	}
	return max
}

// WeightTotal sums the declared weights across the five heuristic
// categories. A well-formed snapshot totals exactly 100.
func (s ThresholdSnapshot) WeightTotal() float64 {
	var total float64
	for i := range s {
		if s[i].Weight != nil && s[i].Category != CategoryComposite {
			total += *s[i].Weight
		}
	}
	return total
}

// CategoryDisabled reports whether a category has current rows and every
// one of them is inactive, which disables the matching heuristic.
func (s ThresholdSnapshot) CategoryDisabled(cat Category) bool {
	found := false
	for i := range s {
		if s[i].Category != cat {
			continue
		}
		found = true
		if s[i].IsActive {
			return false
		}
	}
	return found
}
