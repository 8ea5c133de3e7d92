package domain

import (
	"context"
	"strings"
	"time"
)

// EntityAggregate is the aggregated submission history for one entity.
//
// Counts are the MAXIMUM observed across all history rows for the
// normalized name, not a sum: the upstream store keeps one row per
// submission and each row carries the cumulative count as of that
// submission, so duplicate rows would double-count under summation.
type EntityAggregate struct {
	EntityName      string      `json:"entityName"`
	RejectCount     int         `json:"rejectCount"`
	EscalateCount   int         `json:"escalateCount"`
	LastDisposition Disposition `json:"lastDisposition,omitempty"`
	LastSeenAt      time.Time   `json:"lastSeenAt,omitempty"`

	// IsKnown is false when no history row exists for the entity.
	IsKnown bool `json:"isKnown"`
}

// HistoryStore is the only shared mutable state in the pipeline.
// Implementations must serialize concurrent Record calls for the same
// entity name so each row builds on the latest counts; the policy
// engine additionally serializes the lookup-to-record span so two
// concurrent submissions from one payer cannot both observe
// escalate_count == 0.
type HistoryStore interface {
	// Lookup returns the aggregate for a name. Never returns nil on
	// success; an unseen entity yields zero counts and IsKnown == false.
	Lookup(ctx context.Context, name string) (*EntityAggregate, error)

	// Record appends a history row for the finalized disposition.
	// REJECT sets reject_count = prior max + 1, ESCALATE sets
	// escalate_count = prior max + 1, APPROVE updates only metadata.
	// Called exactly once per finalized submission.
	Record(ctx context.Context, name string, disposition Disposition) error

	Close() error
}

// NormalizeEntityName canonicalizes an entity name for history matching:
// lowercase with runs of whitespace collapsed to single spaces.
// "ALICE  CORP" and "alice corp" are the same entity.
func NormalizeEntityName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
