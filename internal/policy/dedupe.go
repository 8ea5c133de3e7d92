package policy

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// DedupeStore tracks type-specific uniqueness keys of processed
// documents so a resubmitted check or statement is force-rejected.
// Keys live in the cache with a retention TTL.
type DedupeStore struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewDedupeStore creates a dedupe store over a cache.
func NewDedupeStore(cache domain.Cache, ttl time.Duration) *DedupeStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &DedupeStore{cache: cache, ttl: ttl}
}

// Seen reports whether a uniqueness key has already been processed.
func (d *DedupeStore) Seen(ctx context.Context, key string) (bool, error) {
	val, err := d.cache.Get(ctx, "dedupe:"+key)
	if err != nil {
		return false, err
	}
	return val != nil, nil
}

// Mark records a uniqueness key as processed.
func (d *DedupeStore) Mark(ctx context.Context, key string) error {
	return d.cache.Set(ctx, "dedupe:"+key, []byte("1"), d.ttl)
}

// DedupeKey builds the type-specific uniqueness key for a record, e.g.
// check number + payer for checks. Returns "" when any key field is
// absent; a document without a complete key cannot be deduplicated.
func DedupeKey(docType domain.DocType, cfg domain.DocTypeConfig, rec *domain.Record, entityName string) string {
	if rec == nil || len(cfg.UniquenessFields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cfg.UniquenessFields)+2)
	parts = append(parts, string(docType), domain.NormalizeEntityName(entityName))
	for _, field := range cfg.UniquenessFields {
		v, ok := rec.Fields[field]
		if !ok || v == nil {
			return ""
		}
		s := strings.TrimSpace(strings.ToLower(valueString(v)))
		if s == "" {
			return ""
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "|")
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	}
	// Numeric key fields round-trip through their JSON form.
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
