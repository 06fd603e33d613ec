package domain

import (
	"time"
)

// ScoreResult is the output of one heuristic evaluation. Details carries
// the structured diagnostics reviewers need to audit the score, including
// a "reason" code when data was insufficient to evaluate.
type ScoreResult struct {
	Score   float64        `json:"score"`
	Details map[string]any `json:"details"`
}

// ComponentScores holds the per-heuristic contributions to the composite.
// Each value is bounded by its category's configured weight.
type ComponentScores struct {
	GPS          float64 `json:"gps"`
	Speed        float64 `json:"speed"`
	Straightline float64 `json:"straightline"`
	Duplicate    float64 `json:"duplicate"`
	Timing       float64 `json:"timing"`
}

// Sum returns the unclamped total of the component scores.
func (c ComponentScores) Sum() float64 {
	return c.GPS + c.Speed + c.Straightline + c.Duplicate + c.Timing
}

// FraudDetection is the immutable record produced by one scoring run.
// The scoring fields are write-once; only the resolution fields are ever
// mutated afterward, and only by the external review workflow. Re-scoring
// a submission inserts a new row rather than touching this one.
type FraudDetection struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submissionId"`
	EnumeratorID string `json:"enumeratorId"`

	ComputedAt time.Time `json:"computedAt"`

	// ConfigSnapshotVersion is the max active threshold version in effect
	// when the submission was scored, for point-in-time re-auditing.
	ConfigSnapshotVersion int `json:"configSnapshotVersion"`

	Scores     ComponentScores `json:"componentScores"`
	TotalScore float64         `json:"totalScore"`
	Severity   Severity        `json:"severity"`

	// Details maps heuristic category to its diagnostic payload. Populated
	// for every category even when all scores are zero, so a clean verdict
	// is explainable rather than opaque.
	Details map[Category]map[string]any `json:"details"`

	// Resolution fields, owned by the review workflow. Created null here.
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	Resolution      string     `json:"resolution,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`
}

// DetectionFilter narrows review-surface listings.
type DetectionFilter struct {
	EnumeratorID string
	Severity     Severity
	Limit        int
	Offset       int
}
