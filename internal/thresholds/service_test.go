package thresholds

import (
	"context"
	"testing"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

type fakeRepo struct {
	domain.Repository

	snapshot  domain.ThresholdSnapshot
	getCalls  int
	updCalls  int
	updateErr error
}

func (f *fakeRepo) GetActiveThresholds(ctx context.Context) (domain.ThresholdSnapshot, error) {
	f.getCalls++
	return f.snapshot, nil
}

func (f *fakeRepo) UpdateThreshold(ctx context.Context, ruleKey string, value float64, actorID string, opts *domain.ThresholdUpdateOptions) (*domain.ThresholdConfig, error) {
	f.updCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.snapshot {
		if f.snapshot[i].RuleKey == ruleKey {
			f.snapshot[i].Value = value
			f.snapshot[i].Version++
			cfg := f.snapshot[i]
			return &cfg, nil
		}
	}
	return nil, domain.ErrRuleNotFound
}

type mapCache struct {
	data    map[string][]byte
	gets    int
	sets    int
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.data[key], nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.sets++
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.deletes++
	delete(c.data, key)
	return nil
}

func (c *mapCache) Ping(ctx context.Context) error { return nil }
func (c *mapCache) Close() error                   { return nil }

func seedSnapshot() domain.ThresholdSnapshot {
	return domain.ThresholdSnapshot{
		{
			ID:            "t1",
			RuleKey:       "gps_weight",
			Category:      domain.CategoryGPS,
			Value:         25,
			IsActive:      true,
			EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Version:       1,
			CreatedBy:     "system",
		},
		{
			ID:            "t2",
			RuleKey:       "speed_weight",
			Category:      domain.CategorySpeed,
			Value:         25,
			IsActive:      true,
			EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Version:       3,
			CreatedBy:     "system",
		},
	}
}

func TestActiveSnapshotCachesAfterFirstRead(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	cache := newMapCache()
	svc := NewService(repo, cache, time.Minute)

	ctx := context.Background()
	first, err := svc.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(first))
	}
	if repo.getCalls != 1 {
		t.Errorf("repo reads = %d, want 1", repo.getCalls)
	}

	second, err := svc.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if repo.getCalls != 1 {
		t.Errorf("repo reads after cached call = %d, want 1", repo.getCalls)
	}
	if second.Value("gps_weight", 0) != 25 {
		t.Errorf("cached snapshot lost gps_weight value")
	}
}

func TestActiveSnapshotWorksWithoutCache(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	svc := NewService(repo, nil, time.Minute)

	if _, err := svc.ActiveSnapshot(context.Background()); err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if _, err := svc.ActiveSnapshot(context.Background()); err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if repo.getCalls != 2 {
		t.Errorf("repo reads = %d, want 2 without cache", repo.getCalls)
	}
}

func TestActiveSnapshotSurvivesCorruptCacheEntry(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	cache := newMapCache()
	cache.data[snapshotKey] = []byte("{not json")
	svc := NewService(repo, cache, time.Minute)

	snapshot, err := svc.ActiveSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Errorf("snapshot size = %d, want 2", len(snapshot))
	}
	if repo.getCalls != 1 {
		t.Errorf("repo reads = %d, want 1", repo.getCalls)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	cache := newMapCache()
	svc := NewService(repo, cache, time.Minute)
	ctx := context.Background()

	// Prime the cache.
	if _, err := svc.ActiveSnapshot(ctx); err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}

	updated, err := svc.Update(ctx, "gps_weight", 30, "admin-1", nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Value != 30 || updated.Version != 2 {
		t.Errorf("updated = %+v, want value 30 version 2", updated)
	}
	if cache.deletes != 1 {
		t.Errorf("cache deletes = %d, want 1", cache.deletes)
	}

	// Next read must come from the repository and see the new value.
	snapshot, err := svc.ActiveSnapshot(ctx)
	if err != nil {
		t.Fatalf("ActiveSnapshot: %v", err)
	}
	if repo.getCalls != 2 {
		t.Errorf("repo reads = %d, want 2 after invalidation", repo.getCalls)
	}
	if snapshot.Value("gps_weight", 0) != 30 {
		t.Errorf("snapshot gps_weight = %v, want 30", snapshot.Value("gps_weight", 0))
	}
}

func TestUpdateUnknownRuleKey(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	cache := newMapCache()
	svc := NewService(repo, cache, time.Minute)

	_, err := svc.Update(context.Background(), "no_such_rule", 1, "admin-1", nil)
	if err != domain.ErrRuleNotFound {
		t.Errorf("err = %v, want ErrRuleNotFound", err)
	}
	if cache.deletes != 0 {
		t.Errorf("failed update must not invalidate the cache")
	}
}

func TestCurrentConfigVersion(t *testing.T) {
	repo := &fakeRepo{snapshot: seedSnapshot()}
	svc := NewService(repo, newMapCache(), time.Minute)

	version, err := svc.CurrentConfigVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentConfigVersion: %v", err)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
}
