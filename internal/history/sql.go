package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// recordRetries bounds retries on a cross-process write conflict.
const recordRetries = 3

// SQLStore is a HistoryStore over the persistent repository. In-process
// writers are serialized with striped locks; a conflicting write from
// another process surfaces as ErrHistoryConflict and is retried with a
// fresh aggregate read rather than dropped.
type SQLStore struct {
	repo  domain.Repository
	locks stripes
}

// NewSQLStore creates a repository-backed history store.
func NewSQLStore(repo domain.Repository) *SQLStore {
	return &SQLStore{repo: repo}
}

// Lookup returns the aggregate for a name.
func (s *SQLStore) Lookup(ctx context.Context, name string) (*domain.EntityAggregate, error) {
	return s.repo.AggregateHistory(ctx, domain.NormalizeEntityName(name))
}

// Record appends a history row for a finalized disposition.
func (s *SQLStore) Record(ctx context.Context, name string, disposition domain.Disposition) error {
	normalized := domain.NormalizeEntityName(name)

	lock := s.locks.forName(normalized)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt < recordRetries; attempt++ {
		prior, err := s.repo.AggregateHistory(ctx, normalized)
		if err != nil {
			return fmt.Errorf("failed to read entity history: %w", err)
		}

		row := nextRow(normalized, prior, disposition)
		err = s.repo.InsertHistoryRow(ctx, &row)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrHistoryConflict) {
			return fmt.Errorf("failed to record disposition: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("entity %q: retries exhausted: %w", normalized, lastErr)
}

// Close releases the store. The underlying repository is owned by the
// caller and is not closed here.
func (s *SQLStore) Close() error {
	return nil
}
