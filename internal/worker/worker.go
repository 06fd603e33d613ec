// Package worker consumes ingested submissions from the event bus and
// runs them through the scoring pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/engine"
	"github.com/opensurvey/kestrel/internal/policy"
)

// Worker subscribes to submission events, scores them, and publishes the
// resulting detections. Alert publication is decided by the policy engine.
type Worker struct {
	bus      domain.EventBus
	engine   *engine.Engine
	policies *policy.Engine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new scoring worker.
func NewWorker(bus domain.EventBus, eng *engine.Engine, policies *policy.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		engine:   eng,
		policies: policies,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingestion topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicSubmissionIngested, w.handleSubmission)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", domain.TopicSubmissionIngested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("scoring worker started",
		"topic", domain.TopicSubmissionIngested,
	)
	return nil
}

// alertPayload is the message published to the alert topic when a policy
// matches a detection.
type alertPayload struct {
	Detection *domain.FraudDetection `json:"detection"`
	Policies  []policy.Match         `json:"policies"`
}

// handleSubmission scores one ingested submission. Errors are logged and
// returned unmodified so the bus retry policy governs redelivery.
func (w *Worker) handleSubmission(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub domain.SubmissionWithContext
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if sub.SubmissionID == "" {
		slog.Error("submission message missing submission id",
			"message_id", msg.ID,
		)
		return fmt.Errorf("submission id is required")
	}

	detection, err := w.engine.Score(ctx, &sub)
	if err != nil {
		slog.Error("scoring failed",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		return err
	}

	detectionPayload, err := json.Marshal(detection)
	if err != nil {
		return fmt.Errorf("marshal detection: %w", err)
	}

	if err := w.bus.Publish(ctx, domain.TopicDetectionScored, detectionPayload); err != nil {
		slog.Error("failed to publish detection",
			"submission_id", sub.SubmissionID,
			"error", err,
		)
		return err
	}

	var matches []policy.Match
	if w.policies != nil {
		matches = w.policies.EvaluateAll(detection)
	}
	if len(matches) > 0 {
		payload, err := json.Marshal(alertPayload{Detection: detection, Policies: matches})
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		if err := w.bus.Publish(ctx, domain.TopicDetectionAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"submission_id", sub.SubmissionID,
				"error", err,
			)
			return err
		}
	}

	slog.Info("submission processed",
		"submission_id", sub.SubmissionID,
		"enumerator_id", sub.EnumeratorID,
		"total_score", detection.TotalScore,
		"severity", detection.Severity,
		"policy_matches", len(matches),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("scoring worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
