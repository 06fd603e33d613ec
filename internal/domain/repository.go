package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary for the two tables this engine
// owns: fraud_thresholds (versioned config) and fraud_detections.
type Repository interface {
	// Threshold store. GetActiveThresholds returns every current row
	// (effective_until IS NULL) regardless of the active flag; callers
	// decide what an inactive row means. UpdateThreshold atomically
	// closes the current version and inserts the next one, returning
	// ErrRuleNotFound when no current row exists for the key.
	GetActiveThresholds(ctx context.Context) (ThresholdSnapshot, error)
	GetThresholdHistory(ctx context.Context, ruleKey string, limit int) ([]ThresholdConfig, error)
	UpdateThreshold(ctx context.Context, ruleKey string, value float64, actorID string, opts *ThresholdUpdateOptions) (*ThresholdConfig, error)
	GetCurrentConfigVersion(ctx context.Context) (int, error)
	SeedDefaultThresholds(ctx context.Context, actorID string) (int, error)

	// Detection store. SaveDetection is a single insert; it must never
	// partially persist a record.
	SaveDetection(ctx context.Context, det *FraudDetection) error
	GetDetection(ctx context.Context, id string) (*FraudDetection, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]*FraudDetection, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ThresholdUpdateOptions carries the optional fields of a version bump.
// Unset fields are inherited from the closed version.
type ThresholdUpdateOptions struct {
	Weight        *float64
	SeverityFloor *string
	IsActive      *bool
	Notes         string
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
