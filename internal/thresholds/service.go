// Package thresholds is the config access layer between the engine and
// threshold storage. All reads go through a cache-aside snapshot; every
// write invalidates synchronously before returning, so the next scoring
// run on this node sees the new config.
package thresholds

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

// snapshotKey caches the serialized active snapshot.
const snapshotKey = "kestrel:thresholds:active"

// DefaultTTL bounds staleness when an invalidation is missed, e.g. a
// peer node updated a threshold through its own cache instance.
const DefaultTTL = 5 * time.Minute

// Service provides cached threshold access and versioned updates.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates the config access layer. A nil cache disables
// caching and reads straight through to the repository.
func NewService(repo domain.Repository, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, cache: cache, ttl: ttl}
}

// ActiveSnapshot returns the current threshold rows, serving from cache
// when possible. Cache failures degrade to repository reads rather than
// failing the scoring run.
func (s *Service) ActiveSnapshot(ctx context.Context) (domain.ThresholdSnapshot, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, snapshotKey)
		if err != nil {
			slog.Warn("threshold cache read failed", "error", err)
		} else if data != nil {
			var snapshot domain.ThresholdSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil {
				return snapshot, nil
			}
			slog.Warn("threshold cache entry corrupt, rereading", "error", err)
		}
	}

	snapshot, err := s.repo.GetActiveThresholds(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, snapshotKey, data, s.ttl); err != nil {
				slog.Warn("threshold cache write failed", "error", err)
			}
		}
	}

	return snapshot, nil
}

// ByCategory returns the active snapshot grouped for the admin surface.
func (s *Service) ByCategory(ctx context.Context) (map[domain.Category][]domain.ThresholdConfig, error) {
	snapshot, err := s.ActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.ByCategory(), nil
}

// History returns past versions of one rule key, newest first.
func (s *Service) History(ctx context.Context, ruleKey string, limit int) ([]domain.ThresholdConfig, error) {
	return s.repo.GetThresholdHistory(ctx, ruleKey, limit)
}

// Update closes the current version of ruleKey and inserts the next
// one, then synchronously drops the cached snapshot. Returns
// domain.ErrRuleNotFound for unknown keys.
func (s *Service) Update(ctx context.Context, ruleKey string, value float64, actorID string, opts *domain.ThresholdUpdateOptions) (*domain.ThresholdConfig, error) {
	updated, err := s.repo.UpdateThreshold(ctx, ruleKey, value, actorID, opts)
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx)

	slog.Info("threshold updated",
		"rule_key", ruleKey,
		"value", value,
		"version", updated.Version,
		"actor_id", actorID,
	)
	return updated, nil
}

// CurrentConfigVersion returns the highest active threshold version.
func (s *Service) CurrentConfigVersion(ctx context.Context) (int, error) {
	snapshot, err := s.ActiveSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.MaxVersion(), nil
}

// Invalidate drops the cached snapshot. Safe to call when nothing is
// cached.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, snapshotKey); err != nil {
		slog.Warn("threshold cache invalidation failed", "error", err)
	}
}
