// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opensource-finance/kite/internal/domain"
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

// SaveDecision stores a finalized decision result.
func (r *SQLRepository) SaveDecision(ctx context.Context, result *domain.DecisionResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: decision id is required", ErrInvalidInput)
	}

	var finding []byte
	if result.Finding != nil {
		finding, _ = json.Marshal(result.Finding)
	}
	reasons, _ := json.Marshal(result.Reasons)
	advisory, _ := json.Marshal(result.AdvisoryReasons)
	metadata, _ := json.Marshal(result.Metadata)

	systemError := 0
	if result.SystemError {
		systemError = 1
	}

	query := `
		INSERT INTO decisions (
			id, doc_type, entity_name, score, risk_level, disposition,
			system_error, finding, reasons, advisory_reasons, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.DocType, result.EntityName,
		result.Score, result.RiskLevel, result.Disposition,
		systemError, nullable(finding), string(reasons), string(advisory),
		string(metadata), result.CreatedAt,
	)
	return err
}

// GetDecision retrieves a decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, id string) (*domain.DecisionResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, doc_type, entity_name, score, risk_level, disposition,
		       system_error, finding, reasons, advisory_reasons, metadata, created_at
		FROM decisions
		WHERE id = ?
	`

	result, err := r.scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return result, err
}

// ListDecisionsByEntity retrieves recent decisions for an entity,
// newest first.
func (r *SQLRepository) ListDecisionsByEntity(ctx context.Context, entityName string, limit int) ([]*domain.DecisionResult, error) {
	if entityName == "" {
		return nil, fmt.Errorf("%w: entityName is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, doc_type, entity_name, score, risk_level, disposition,
		       system_error, finding, reasons, advisory_reasons, metadata, created_at
		FROM decisions
		WHERE entity_name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), entityName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.DecisionResult
	for rows.Next() {
		result, err := r.scanDecision(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanDecision(row scanner) (*domain.DecisionResult, error) {
	var result domain.DecisionResult
	var systemError int
	var finding sql.NullString
	var reasons, advisory, metadata string

	err := row.Scan(
		&result.ID, &result.DocType, &result.EntityName,
		&result.Score, &result.RiskLevel, &result.Disposition,
		&systemError, &finding, &reasons, &advisory,
		&metadata, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.SystemError = systemError == 1
	if finding.Valid && finding.String != "" {
		result.Finding = &domain.FraudFinding{}
		if err := json.Unmarshal([]byte(finding.String), result.Finding); err != nil {
			return nil, fmt.Errorf("failed to parse finding for %s: %w", result.ID, err)
		}
	}
	json.Unmarshal([]byte(reasons), &result.Reasons)
	json.Unmarshal([]byte(advisory), &result.AdvisoryReasons)
	json.Unmarshal([]byte(metadata), &result.Metadata)

	return &result, nil
}

// InsertHistoryRow appends a history row. The row's sequence number is
// assigned from the current maximum inside the insert; a concurrent
// writer that read the same prior state collides on the primary key and
// gets ErrHistoryConflict, so it can retry with a fresh read.
func (r *SQLRepository) InsertHistoryRow(ctx context.Context, row *domain.HistoryRow) error {
	if row == nil || row.EntityName == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO entity_history (entity_name, seq, reject_count, escalate_count, disposition, seen_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		FROM entity_history
		WHERE entity_name = ?
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		row.EntityName, row.RejectCount, row.EscalateCount,
		row.Disposition, row.SeenAt, row.EntityName,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("entity %q: %w", row.EntityName, domain.ErrHistoryConflict)
	}
	return err
}

// AggregateHistory folds an entity's history rows into the aggregate:
// maximum counts across rows, disposition and timestamp from the most
// recent row. An entity with no rows aggregates to the zero value with
// IsKnown false.
func (r *SQLRepository) AggregateHistory(ctx context.Context, normalizedName string) (*domain.EntityAggregate, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}

	agg := &domain.EntityAggregate{EntityName: normalizedName}

	query := `
		SELECT COUNT(*), COALESCE(MAX(reject_count), 0), COALESCE(MAX(escalate_count), 0)
		FROM entity_history
		WHERE entity_name = ?
	`
	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), normalizedName).Scan(
		&count, &agg.RejectCount, &agg.EscalateCount,
	)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return agg, nil
	}
	agg.IsKnown = true

	latest := `
		SELECT disposition, seen_at
		FROM entity_history
		WHERE entity_name = ?
		ORDER BY seq DESC
		LIMIT 1
	`
	err = r.db.QueryRowContext(ctx, r.rebind(latest), normalizedName).Scan(
		&agg.LastDisposition, &agg.LastSeenAt,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return agg, nil
}

// SaveCustomRule stores or updates an operator-defined rule.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, name, description, doc_type, expression, fraud_type,
			severity, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			doc_type = excluded.doc_type,
			expression = excluded.expression,
			fraud_type = excluded.fraud_type,
			severity = excluded.severity,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.DocType,
		rule.Expression, rule.FraudType, rule.Severity, rule.Reason,
		enabled, now, now,
	)
	return err
}

// GetCustomRule retrieves a rule by ID.
func (r *SQLRepository) GetCustomRule(ctx context.Context, id string) (*domain.CustomRule, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, doc_type, expression, fraud_type, severity, reason, enabled
		FROM custom_rules
		WHERE id = ?
	`

	var rule domain.CustomRule
	var description sql.NullString
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&rule.ID, &rule.Name, &description, &rule.DocType,
		&rule.Expression, &rule.FraudType, &rule.Severity, &rule.Reason,
		&enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListCustomRules retrieves all rules, enabled and disabled.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, doc_type, expression, fraud_type, severity, reason, enabled
		FROM custom_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.DocType,
			&rule.Expression, &rule.FraudType, &rule.Severity, &rule.Reason,
			&enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
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

// isUniqueViolation reports whether an error is a primary-key or unique
// constraint violation from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
