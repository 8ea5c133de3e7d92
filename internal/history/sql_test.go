package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/kite/internal/domain"
)

// conflictRepo is a Repository stub whose InsertHistoryRow fails with a
// write conflict a configured number of times before succeeding.
type conflictRepo struct {
	domain.Repository // panic on anything not overridden

	conflicts int
	attempts  int
	inserted  []domain.HistoryRow
	agg       domain.EntityAggregate
}

func (r *conflictRepo) AggregateHistory(ctx context.Context, name string) (*domain.EntityAggregate, error) {
	agg := r.agg
	agg.EntityName = name
	return &agg, nil
}

func (r *conflictRepo) InsertHistoryRow(ctx context.Context, row *domain.HistoryRow) error {
	r.attempts++
	if r.attempts <= r.conflicts {
		return domain.ErrHistoryConflict
	}
	r.inserted = append(r.inserted, *row)
	return nil
}

func TestSQLStoreRecordBuildsNextRow(t *testing.T) {
	repo := &conflictRepo{agg: domain.EntityAggregate{
		IsKnown: true, RejectCount: 2, EscalateCount: 1,
	}}
	s := NewSQLStore(repo)

	if err := s.Record(context.Background(), "Acme Corp", domain.DispositionReject); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(repo.inserted))
	}

	row := repo.inserted[0]
	if row.EntityName != "acme corp" {
		t.Errorf("EntityName = %q, want normalized acme corp", row.EntityName)
	}
	if row.RejectCount != 3 {
		t.Errorf("RejectCount = %d, want prior max + 1 = 3", row.RejectCount)
	}
	if row.EscalateCount != 1 {
		t.Errorf("EscalateCount = %d, want carried 1", row.EscalateCount)
	}
	if row.Disposition != domain.DispositionReject {
		t.Errorf("Disposition = %s, want REJECT", row.Disposition)
	}
}

func TestSQLStoreRetriesOnConflict(t *testing.T) {
	repo := &conflictRepo{conflicts: 2}
	s := NewSQLStore(repo)

	if err := s.Record(context.Background(), "acme corp", domain.DispositionEscalate); err != nil {
		t.Fatalf("Record() error = %v, want retry to succeed", err)
	}
	if repo.attempts != 3 {
		t.Errorf("attempts = %d, want 3", repo.attempts)
	}
	if len(repo.inserted) != 1 {
		t.Errorf("inserted %d rows, want 1", len(repo.inserted))
	}
}

func TestSQLStoreRetriesExhausted(t *testing.T) {
	repo := &conflictRepo{conflicts: 100}
	s := NewSQLStore(repo)

	err := s.Record(context.Background(), "acme corp", domain.DispositionReject)
	if err == nil {
		t.Fatal("Record() error = nil, want conflict error")
	}
	if !errors.Is(err, domain.ErrHistoryConflict) {
		t.Errorf("error = %v, want wrapped ErrHistoryConflict", err)
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("error = %v, want retries exhausted", err)
	}
	if repo.attempts != recordRetries {
		t.Errorf("attempts = %d, want %d", repo.attempts, recordRetries)
	}
}

func TestSQLStoreLookupNormalizes(t *testing.T) {
	repo := &conflictRepo{agg: domain.EntityAggregate{IsKnown: true}}
	s := NewSQLStore(repo)

	agg, err := s.Lookup(context.Background(), "  ALICE   Corp ")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if agg.EntityName != "alice corp" {
		t.Errorf("EntityName = %q, want alice corp", agg.EntityName)
	}
}
