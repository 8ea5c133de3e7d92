package history

import (
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// MemoryStore is an in-memory HistoryStore. Used by the community tier
// when running without a database and by tests needing deterministic
// history.
//
// Rows are kept append-only, mirroring the persistent store: each row
// carries the cumulative counts as of its submission, and the aggregate
// takes the maximum across rows.
type MemoryStore struct {
	locks stripes

	mu   sync.RWMutex
	rows map[string][]domain.HistoryRow
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]domain.HistoryRow)}
}

// Lookup returns the aggregate for a name.
func (s *MemoryStore) Lookup(ctx context.Context, name string) (*domain.EntityAggregate, error) {
	normalized := domain.NormalizeEntityName(name)

	s.mu.RLock()
	rows := s.rows[normalized]
	s.mu.RUnlock()

	return aggregateRows(normalized, rows), nil
}

// Record appends a history row for a finalized disposition, serialized
// per entity.
func (s *MemoryStore) Record(ctx context.Context, name string, disposition domain.Disposition) error {
	normalized := domain.NormalizeEntityName(name)

	lock := s.locks.forName(normalized)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	prior := aggregateRows(normalized, s.rows[normalized])
	s.mu.RUnlock()

	row := nextRow(normalized, prior, disposition)

	s.mu.Lock()
	s.rows[normalized] = append(s.rows[normalized], row)
	s.mu.Unlock()
	return nil
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string][]domain.HistoryRow)
	return nil
}

// aggregateRows folds rows into the aggregate: maximum counts across
// rows, metadata from the most recent row.
func aggregateRows(normalized string, rows []domain.HistoryRow) *domain.EntityAggregate {
	agg := &domain.EntityAggregate{EntityName: normalized}
	if len(rows) == 0 {
		return agg
	}
	agg.IsKnown = true
	for _, r := range rows {
		if r.RejectCount > agg.RejectCount {
			agg.RejectCount = r.RejectCount
		}
		if r.EscalateCount > agg.EscalateCount {
			agg.EscalateCount = r.EscalateCount
		}
		if r.SeenAt.After(agg.LastSeenAt) {
			agg.LastSeenAt = r.SeenAt
			agg.LastDisposition = r.Disposition
		}
	}
	return agg
}

// nextRow builds the row for a new disposition: REJECT and ESCALATE
// bump their counter to prior max + 1, APPROVE carries counts forward.
func nextRow(normalized string, prior *domain.EntityAggregate, disposition domain.Disposition) domain.HistoryRow {
	row := domain.HistoryRow{
		EntityName:    normalized,
		RejectCount:   prior.RejectCount,
		EscalateCount: prior.EscalateCount,
		Disposition:   disposition,
		SeenAt:        time.Now().UTC(),
	}
	switch disposition {
	case domain.DispositionReject:
		row.RejectCount = prior.RejectCount + 1
	case domain.DispositionEscalate:
		row.EscalateCount = prior.EscalateCount + 1
	}
	return row
}
