// Package domain defines the core types and interfaces for Kite.
package domain

import (
	"context"
	"time"
)

// HistoryRow is one append-only entity history row. Each row carries the
// cumulative counts as of that submission; the aggregate read takes the
// maximum across rows.
type HistoryRow struct {
	EntityName    string      `json:"entityName"`
	RejectCount   int         `json:"rejectCount"`
	EscalateCount int         `json:"escalateCount"`
	Disposition   Disposition `json:"disposition"`
	SeenAt        time.Time   `json:"seenAt"`
}

// CustomRule is an operator-defined classification rule evaluated with
// CEL against the feature vector. Fired custom rules join the built-in
// severity table for the most-severe-finding selection.
type CustomRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DocType     DocType   `json:"docType"`
	Expression  string    `json:"expression"`
	FraudType   FraudType `json:"fraudType"`
	Severity    int       `json:"severity"`
	Reason      string    `json:"reason"`
	Enabled     bool      `json:"enabled"`
}

// Repository defines the interface for data persistence.
type Repository interface {
	// Decision results
	SaveDecision(ctx context.Context, result *DecisionResult) error
	GetDecision(ctx context.Context, id string) (*DecisionResult, error)
	ListDecisionsByEntity(ctx context.Context, entityName string, limit int) ([]*DecisionResult, error)

	// Entity history rows (append-only)
	InsertHistoryRow(ctx context.Context, row *HistoryRow) error
	AggregateHistory(ctx context.Context, normalizedName string) (*EntityAggregate, error)

	// Custom classification rules
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	GetCustomRule(ctx context.Context, id string) (*CustomRule, error)
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
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
