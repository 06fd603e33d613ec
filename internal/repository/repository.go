// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensurvey/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const thresholdColumns = `
	id, rule_key, display_name, rule_category, threshold_value, weight,
	severity_floor, is_active, effective_from, effective_until, version,
	created_by, created_at, notes
`

// GetActiveThresholds returns every current threshold row (one per rule
// key, the row with effective_until IS NULL), including inactive rows so
// the engine can tell a disabled category from a missing one.
func (r *SQLRepository) GetActiveThresholds(ctx context.Context) (domain.ThresholdSnapshot, error) {
	query := `
		SELECT ` + thresholdColumns + `
		FROM fraud_thresholds
		WHERE effective_until IS NULL
		ORDER BY rule_category, rule_key
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshot domain.ThresholdSnapshot
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, *t)
	}

	return snapshot, rows.Err()
}

// GetThresholdHistory returns past and current versions of a rule key,
// newest first.
func (r *SQLRepository) GetThresholdHistory(ctx context.Context, ruleKey string, limit int) ([]domain.ThresholdConfig, error) {
	if ruleKey == "" {
		return nil, fmt.Errorf("%w: ruleKey is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + thresholdColumns + `
		FROM fraud_thresholds
		WHERE rule_key = ?
		ORDER BY version DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), ruleKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.ThresholdConfig
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, domain.ErrRuleNotFound
	}

	return history, nil
}

// UpdateThreshold closes the current version of ruleKey and inserts the
// next one in a single transaction. The partial unique index on
// (rule_key) WHERE effective_until IS NULL makes "exactly one current
// row per key" a database invariant, not just an application rule.
func (r *SQLRepository) UpdateThreshold(ctx context.Context, ruleKey string, value float64, actorID string, opts *domain.ThresholdUpdateOptions) (*domain.ThresholdConfig, error) {
	if ruleKey == "" {
		return nil, fmt.Errorf("%w: ruleKey is required", ErrInvalidInput)
	}
	if actorID == "" {
		actorID = "system"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := r.currentThresholdTx(ctx, tx, ruleKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	closeQuery := `
		UPDATE fraud_thresholds
		SET effective_until = ?
		WHERE rule_key = ? AND effective_until IS NULL
	`
	if _, err := tx.ExecContext(ctx, r.rebind(closeQuery), now, ruleKey); err != nil {
		return nil, err
	}

	next := *current
	next.ID = uuid.New().String()
	next.Value = value
	next.Version = current.Version + 1
	next.EffectiveFrom = now
	next.EffectiveUntil = nil
	next.CreatedBy = actorID
	next.CreatedAt = now
	next.Notes = ""

	if opts != nil {
		if opts.Weight != nil {
			next.Weight = opts.Weight
		}
		if opts.SeverityFloor != nil {
			next.SeverityFloor = *opts.SeverityFloor
		}
		if opts.IsActive != nil {
			next.IsActive = *opts.IsActive
		}
		next.Notes = opts.Notes
	}

	if err := insertThresholdTx(ctx, tx, r, &next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &next, nil
}

// GetCurrentConfigVersion returns the highest version among active
// current rows.
func (r *SQLRepository) GetCurrentConfigVersion(ctx context.Context) (int, error) {
	query := `
		SELECT COALESCE(MAX(version), 1)
		FROM fraud_thresholds
		WHERE effective_until IS NULL AND is_active = 1
	`

	var version int
	if err := r.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *SQLRepository) currentThresholdTx(ctx context.Context, tx *sql.Tx, ruleKey string) (*domain.ThresholdConfig, error) {
	query := `
		SELECT ` + thresholdColumns + `
		FROM fraud_thresholds
		WHERE rule_key = ? AND effective_until IS NULL
	`

	row := tx.QueryRowContext(ctx, r.rebind(query), ruleKey)
	t, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func insertThresholdTx(ctx context.Context, tx *sql.Tx, r *SQLRepository, t *domain.ThresholdConfig) error {
	query := `
		INSERT INTO fraud_thresholds (
			id, rule_key, display_name, rule_category, threshold_value, weight,
			severity_floor, is_active, effective_from, effective_until, version,
			created_by, created_at, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	active := 0
	if t.IsActive {
		active = 1
	}

	_, err := tx.ExecContext(ctx, r.rebind(query),
		t.ID, t.RuleKey, t.DisplayName, string(t.Category), t.Value, t.Weight,
		nullString(t.SeverityFloor), active, t.EffectiveFrom, t.EffectiveUntil,
		t.Version, t.CreatedBy, t.CreatedAt, nullString(t.Notes),
	)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanThreshold(s scanner) (*domain.ThresholdConfig, error) {
	var t domain.ThresholdConfig
	var category string
	var weight sql.NullFloat64
	var severityFloor, notes sql.NullString
	var active int
	var effectiveUntil sql.NullTime

	err := s.Scan(
		&t.ID, &t.RuleKey, &t.DisplayName, &category, &t.Value, &weight,
		&severityFloor, &active, &t.EffectiveFrom, &effectiveUntil,
		&t.Version, &t.CreatedBy, &t.CreatedAt, &notes,
	)
	if err != nil {
		return nil, err
	}

	t.Category = domain.Category(category)
	t.IsActive = active == 1
	if weight.Valid {
		t.Weight = &weight.Float64
	}
	if severityFloor.Valid {
		t.SeverityFloor = severityFloor.String
	}
	if effectiveUntil.Valid {
		until := effectiveUntil.Time
		t.EffectiveUntil = &until
	}
	if notes.Valid {
		t.Notes = notes.String
	}

	return &t, nil
}

// SaveDetection stores a finished detection. Detections are append-only:
// there is no update path here, re-scoring inserts a new row.
func (r *SQLRepository) SaveDetection(ctx context.Context, d *domain.FraudDetection) error {
	if d.SubmissionID == "" {
		return fmt.Errorf("%w: submissionID is required", ErrInvalidInput)
	}

	details, _ := json.Marshal(d.Details)

	query := `
		INSERT INTO fraud_detections (
			id, submission_id, enumerator_id, computed_at, config_snapshot_version,
			gps_score, speed_score, straightline_score, duplicate_score, timing_score,
			total_score, severity, details,
			reviewed_by, reviewed_at, resolution, resolution_notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.SubmissionID, d.EnumeratorID, d.ComputedAt, d.ConfigSnapshotVersion,
		d.Scores.GPS, d.Scores.Speed, d.Scores.Straightline, d.Scores.Duplicate, d.Scores.Timing,
		d.TotalScore, string(d.Severity), string(details),
		nullString(d.ReviewedBy), d.ReviewedAt, nullString(d.Resolution), nullString(d.ResolutionNotes),
	)
	return err
}

const detectionColumns = `
	id, submission_id, enumerator_id, computed_at, config_snapshot_version,
	gps_score, speed_score, straightline_score, duplicate_score, timing_score,
	total_score, severity, details,
	reviewed_by, reviewed_at, resolution, resolution_notes
`

// GetDetection retrieves one detection by ID.
func (r *SQLRepository) GetDetection(ctx context.Context, id string) (*domain.FraudDetection, error) {
	query := `
		SELECT ` + detectionColumns + `
		FROM fraud_detections
		WHERE id = ?
	`

	d, err := scanDetection(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDetections returns detections matching the filter, newest first.
func (r *SQLRepository) ListDetections(ctx context.Context, filter domain.DetectionFilter) ([]*domain.FraudDetection, error) {
	query := `
		SELECT ` + detectionColumns + `
		FROM fraud_detections
		WHERE 1 = 1
	`
	var args []any

	if filter.EnumeratorID != "" {
		query += " AND enumerator_id = ?"
		args = append(args, filter.EnumeratorID)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY computed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var detections []*domain.FraudDetection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, d)
	}

	return detections, rows.Err()
}

func scanDetection(s scanner) (*domain.FraudDetection, error) {
	var d domain.FraudDetection
	var severity, details string
	var reviewedBy, resolution, resolutionNotes sql.NullString
	var reviewedAt sql.NullTime

	err := s.Scan(
		&d.ID, &d.SubmissionID, &d.EnumeratorID, &d.ComputedAt, &d.ConfigSnapshotVersion,
		&d.Scores.GPS, &d.Scores.Speed, &d.Scores.Straightline, &d.Scores.Duplicate, &d.Scores.Timing,
		&d.TotalScore, &severity, &details,
		&reviewedBy, &reviewedAt, &resolution, &resolutionNotes,
	)
	if err != nil {
		return nil, err
	}

	d.Severity = domain.Severity(severity)
	if details != "" {
		json.Unmarshal([]byte(details), &d.Details)
	}
	if reviewedBy.Valid {
		d.ReviewedBy = reviewedBy.String
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		d.ReviewedAt = &at
	}
	if resolution.Valid {
		d.Resolution = resolution.String
	}
	if resolutionNotes.Valid {
		d.ResolutionNotes = resolutionNotes.String
	}

	return &d, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
