package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opensurvey/kestrel/internal/bus"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/engine"
	"github.com/opensurvey/kestrel/internal/policy"
)

type staticConfig struct {
	snapshot domain.ThresholdSnapshot
}

func (s *staticConfig) ActiveSnapshot(ctx context.Context) (domain.ThresholdSnapshot, error) {
	return s.snapshot, nil
}

func testSnapshot() domain.ThresholdSnapshot {
	row := func(key string, cat domain.Category, value float64) domain.ThresholdConfig {
		return domain.ThresholdConfig{
			RuleKey:  key,
			Category: cat,
			Value:    value,
			IsActive: true,
			Version:  1,
		}
	}
	return domain.ThresholdSnapshot{
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

type collector struct {
	mu       sync.Mutex
	messages []*domain.Message
}

func (c *collector) handle(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *collector) first() *domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[0]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

// nightSubmission lands on a weekend night in local survey time, so the
// timing heuristic gives it a nonzero score.
func nightSubmission() *domain.SubmissionWithContext {
	return &domain.SubmissionWithContext{
		SubmissionID: "sub-1",
		EnumeratorID: "enum-1",
		FormID:       "form-1",
		SubmittedAt:  time.Date(2026, 2, 22, 1, 0, 0, 0, time.UTC),
	}
}

func newTestWorker(t *testing.T, policies []policy.Config) (*Worker, *bus.ChannelBus) {
	t.Helper()

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	eng := engine.New(&staticConfig{snapshot: testSnapshot()}, nil)

	pol, err := policy.NewEngine()
	if err != nil {
		t.Fatalf("policy.NewEngine: %v", err)
	}
	if err := pol.LoadPolicies(policies); err != nil {
		t.Fatalf("LoadPolicies: %v", err)
	}

	w := NewWorker(b, eng, pol)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	return w, b
}

func publishSubmission(t *testing.T, b *bus.ChannelBus, sub *domain.SubmissionWithContext) {
	t.Helper()
	payload, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal submission: %v", err)
	}
	if err := b.Publish(context.Background(), domain.TopicSubmissionIngested, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestWorkerScoresAndPublishesDetection(t *testing.T) {
	_, b := newTestWorker(t, nil)
	ctx := context.Background()

	scored := &collector{}
	if _, err := b.Subscribe(ctx, domain.TopicDetectionScored, scored.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	publishSubmission(t, b, nightSubmission())

	waitFor(t, func() bool { return scored.count() == 1 })

	var detection domain.FraudDetection
	if err := json.Unmarshal(scored.first().Payload, &detection); err != nil {
		t.Fatalf("unmarshal detection: %v", err)
	}
	if detection.SubmissionID != "sub-1" {
		t.Errorf("SubmissionID = %q, want sub-1", detection.SubmissionID)
	}
	if detection.Scores.Timing != 10 {
		t.Errorf("Timing score = %v, want 10 (weekend night)", detection.Scores.Timing)
	}
	if detection.TotalScore != 10 || detection.Severity != domain.SeverityClean {
		t.Errorf("total = %v severity = %v, want 10 clean", detection.TotalScore, detection.Severity)
	}
}

func TestWorkerPublishesAlertOnPolicyMatch(t *testing.T) {
	_, b := newTestWorker(t, []policy.Config{
		{Name: "timing_watch", Expression: "timing_score >= 10.0", Action: "notify", Enabled: true},
	})
	ctx := context.Background()

	alerts := &collector{}
	if _, err := b.Subscribe(ctx, domain.TopicDetectionAlert, alerts.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	publishSubmission(t, b, nightSubmission())

	waitFor(t, func() bool { return alerts.count() == 1 })

	var alert alertPayload
	if err := json.Unmarshal(alerts.first().Payload, &alert); err != nil {
		t.Fatalf("unmarshal alert: %v", err)
	}
	if alert.Detection == nil || alert.Detection.SubmissionID != "sub-1" {
		t.Errorf("alert detection = %+v, want sub-1", alert.Detection)
	}
	if len(alert.Policies) != 1 || alert.Policies[0].Name != "timing_watch" {
		t.Errorf("alert policies = %+v, want timing_watch", alert.Policies)
	}
}

func TestWorkerNoAlertWhenNoPolicyMatches(t *testing.T) {
	_, b := newTestWorker(t, policy.DefaultPolicies())
	ctx := context.Background()

	scored := &collector{}
	alerts := &collector{}
	if _, err := b.Subscribe(ctx, domain.TopicDetectionScored, scored.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Subscribe(ctx, domain.TopicDetectionAlert, alerts.handle); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	publishSubmission(t, b, nightSubmission())

	waitFor(t, func() bool { return scored.count() == 1 })
	time.Sleep(50 * time.Millisecond)

	if alerts.count() != 0 {
		t.Errorf("alerts = %d, want none for a clean detection", alerts.count())
	}
}

func TestWorkerRejectsMalformedPayload(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	err := w.handleSubmission(context.Background(), &domain.Message{
		ID:      "msg-1",
		Topic:   domain.TopicSubmissionIngested,
		Payload: []byte("not json"),
	})
	if err == nil {
		t.Errorf("malformed payload should return an error")
	}

	err = w.handleSubmission(context.Background(), &domain.Message{
		ID:      "msg-2",
		Topic:   domain.TopicSubmissionIngested,
		Payload: []byte(`{"enumeratorId":"enum-1"}`),
	})
	if err == nil {
		t.Errorf("missing submission id should return an error")
	}
}

func TestWorkerStats(t *testing.T) {
	w, _ := newTestWorker(t, nil)

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", stats.SubscriptionCount)
	}
	if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicSubmissionIngested {
		t.Errorf("Topics = %v", stats.Topics)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("SubscriptionCount after stop = %d, want 0", got)
	}
}
