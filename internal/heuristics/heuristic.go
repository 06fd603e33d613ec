// Package heuristics implements the five fraud signals: GPS clustering,
// speed run, straight-lining, duplicate response, and off-hours timing.
// Each heuristic is a pure function of the submission context and the
// threshold snapshot it is handed, so a scoring run is deterministic and
// re-auditable against the stamped config version.
package heuristics

import (
	"github.com/opensurvey/kestrel/internal/domain"
)

// Heuristic is one fraud signal. Evaluate never returns an error: a
// heuristic that cannot run reports score 0 with a reason code in its
// details so the verdict stays explainable.
type Heuristic interface {
	// Key identifies the heuristic in logs and detection details.
	Key() string

	// Category names the threshold category the heuristic reads.
	Category() domain.Category

	// Evaluate scores one submission against the snapshot. The returned
	// score is bounded by the category's configured weight.
	Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult
}

// All returns the full registry in component order. The engine maps each
// heuristic's score into the matching ComponentScores field.
func All() []Heuristic {
	return []Heuristic{
		&GPSClustering{},
		&SpeedRun{},
		&StraightLining{},
		&DuplicateResponse{},
		&OffHours{},
	}
}
