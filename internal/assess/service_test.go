package assess

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/advisor"
	"github.com/opensource-finance/kite/internal/classify"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/policy"
	"github.com/opensource-finance/kite/internal/scoring"
)

type captureBus struct {
	published map[string][][]byte
}

func newCaptureBus() *captureBus {
	return &captureBus{published: make(map[string][][]byte)}
}

func (b *captureBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.published[topic] = append(b.published[topic], payload)
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *captureBus) Ping(ctx context.Context) error { return nil }
func (b *captureBus) Close() error                   { return nil }

type captureRepo struct {
	domain.Repository

	saved   []*domain.DecisionResult
	saveErr error
}

func (r *captureRepo) SaveDecision(ctx context.Context, result *domain.DecisionResult) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, result)
	return nil
}

// testService wires a full community-tier pipeline over in-memory
// collaborators.
func testService(t *testing.T, store domain.HistoryStore, repo domain.Repository, bus domain.EventBus) *Service {
	t.Helper()

	classifier, err := classify.NewEngine()
	if err != nil {
		t.Fatalf("classify.NewEngine() error = %v", err)
	}
	configs := domain.DefaultDocTypeConfigs()
	scorer := scoring.NewScorer(configs, scoring.BuiltinArtifacts())
	policyEngine := policy.NewEngine(store, advisor.NewMatrixAdvisor(), nil, time.Second, nil)

	return New(feature.NewExtractor(), scorer, classifier, policyEngine, configs, repo, bus, nil)
}

func cleanCheck() *domain.Record {
	return &domain.Record{Fields: map[string]any{
		"check_number":          "1042",
		"date":                  "2025-06-10",
		"payee":                 "Jordan Reyes",
		"payer_name":            "Acme Corp",
		"bank_name":             "First National",
		"routing_number":        "021000021",
		"account_number":        "123456789",
		"amount":                450.00,
		"amount_in_words_value": 450.00,
		"image_quality":         0.95,
	}}
}

func TestAssessUnknownDocType(t *testing.T) {
	s := testService(t, history.NewMemoryStore(), nil, nil)

	_, err := s.Assess(context.Background(), domain.DocType("invoice"), "acme corp", cleanCheck())
	if !errors.Is(err, domain.ErrUnknownDocType) {
		t.Errorf("Assess() error = %v, want ErrUnknownDocType", err)
	}
}

func TestAssessFirstSubmissionEscalates(t *testing.T) {
	store := history.NewMemoryStore()
	s := testService(t, store, nil, nil)

	res, err := s.Assess(context.Background(), domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}

	if res.Disposition != domain.DispositionEscalate {
		t.Errorf("Disposition = %s, want ESCALATE on first submission", res.Disposition)
	}
	if res.Finding != nil {
		t.Errorf("Finding = %+v, want withheld on first submission", res.Finding)
	}
	if res.ID == "" {
		t.Error("ID empty")
	}
	if res.Metadata.Version == "" {
		t.Error("Metadata.Version empty")
	}

	agg, _ := store.Lookup(context.Background(), "acme corp")
	if !agg.IsKnown || agg.EscalateCount != 1 {
		t.Errorf("history after first submission = %+v, want known with 1 escalation", agg)
	}
}

func TestAssessRepeatOffenderRejected(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	// Seed one prior escalation.
	if err := store.Record(ctx, "acme corp", domain.DispositionEscalate); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	bus := newCaptureBus()
	s := testService(t, store, nil, bus)

	res, err := s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}

	if res.Disposition != domain.DispositionReject {
		t.Errorf("Disposition = %s, want REJECT for repeat offender", res.Disposition)
	}
	if res.Finding == nil || res.Finding.Type != domain.FraudRepeatOffender {
		t.Errorf("Finding = %+v, want REPEAT_OFFENDER", res.Finding)
	}

	// Rejections emit both a decision and an alert event.
	if len(bus.published[domain.TopicDecision]) != 1 {
		t.Errorf("decision events = %d, want 1", len(bus.published[domain.TopicDecision]))
	}
	if len(bus.published[domain.TopicAlert]) != 1 {
		t.Errorf("alert events = %d, want 1", len(bus.published[domain.TopicAlert]))
	}

	var published domain.DecisionResult
	if err := json.Unmarshal(bus.published[domain.TopicAlert][0], &published); err != nil {
		t.Fatalf("alert payload unmarshal error = %v", err)
	}
	if published.Disposition != domain.DispositionReject {
		t.Errorf("published disposition = %s, want REJECT", published.Disposition)
	}
}

func TestAssessApprovedSecondSubmission(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	// Known entity with a clean record.
	store.Record(ctx, "acme corp", domain.DispositionApprove)

	bus := newCaptureBus()
	repo := &captureRepo{}
	s := testService(t, store, repo, bus)

	res, err := s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}

	if res.Disposition != domain.DispositionApprove {
		t.Errorf("Disposition = %s, want APPROVE for clean known entity", res.Disposition)
	}
	if len(res.Reasons) == 0 {
		t.Error("Reasons empty, want at least one")
	}
	if len(repo.saved) != 1 {
		t.Errorf("persisted decisions = %d, want 1", len(repo.saved))
	}
	if len(bus.published[domain.TopicDecision]) != 1 {
		t.Errorf("decision events = %d, want 1", len(bus.published[domain.TopicDecision]))
	}
	if len(bus.published[domain.TopicAlert]) != 0 {
		t.Errorf("alert events = %d, want 0 for approval", len(bus.published[domain.TopicAlert]))
	}
}

func TestAssessPersistFailureDoesNotFailDecision(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	store.Record(ctx, "acme corp", domain.DispositionApprove)

	repo := &captureRepo{saveErr: errors.New("disk full")}
	s := testService(t, store, repo, nil)

	res, err := s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess() error = %v, want persistence failure swallowed", err)
	}
	if res.Disposition != domain.DispositionApprove {
		t.Errorf("Disposition = %s, want APPROVE", res.Disposition)
	}
}

func TestAssessMissingModelArtifactAborts(t *testing.T) {
	store := history.NewMemoryStore()
	classifier, err := classify.NewEngine()
	if err != nil {
		t.Fatalf("classify.NewEngine() error = %v", err)
	}
	configs := domain.DefaultDocTypeConfigs()
	// No artifacts at all: check has no fallback.
	scorer := scoring.NewScorer(configs, nil)
	policyEngine := policy.NewEngine(store, advisor.NewMatrixAdvisor(), nil, time.Second, nil)
	s := New(feature.NewExtractor(), scorer, classifier, policyEngine, configs, nil, nil, nil)

	ctx := context.Background()
	_, err = s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if !errors.Is(err, domain.ErrModelArtifact) {
		t.Fatalf("Assess() error = %v, want ErrModelArtifact", err)
	}

	// Aborted before any history mutation.
	agg, _ := store.Lookup(ctx, "acme corp")
	if agg.IsKnown {
		t.Error("history mutated by aborted submission")
	}
}

func TestAssessHeuristicFallbackFlagged(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	store.Record(ctx, "jordan reyes", domain.DispositionApprove)

	classifier, err := classify.NewEngine()
	if err != nil {
		t.Fatalf("classify.NewEngine() error = %v", err)
	}
	configs := domain.DefaultDocTypeConfigs()
	scorer := scoring.NewScorer(configs, nil) // paystub falls back
	policyEngine := policy.NewEngine(store, advisor.NewMatrixAdvisor(), nil, time.Second, nil)
	s := New(feature.NewExtractor(), scorer, classifier, policyEngine, configs, nil, nil, nil)

	rec := &domain.Record{Fields: map[string]any{
		"employer_name":    "Acme Corp",
		"employee_name":    "Jordan Reyes",
		"gross_pay":        4000.00,
		"net_pay":          3100.00,
		"total_deductions": 900.00,
		"federal_tax":      520.00,
		"image_quality":    0.95,
	}}

	res, err := s.Assess(ctx, domain.DocTypePaystub, "Jordan Reyes", rec)
	if err != nil {
		t.Fatalf("Assess() error = %v", err)
	}
	if !res.Metadata.Heuristic {
		t.Error("Metadata.Heuristic = false, want true for fallback scoring")
	}
}

func TestAssessDuplicateResubmissionRejected(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	store.Record(ctx, "acme corp", domain.DispositionApprove)

	classifier, err := classify.NewEngine()
	if err != nil {
		t.Fatalf("classify.NewEngine() error = %v", err)
	}
	configs := domain.DefaultDocTypeConfigs()
	scorer := scoring.NewScorer(configs, scoring.BuiltinArtifacts())
	dedupe := policy.NewDedupeStore(memCache{data: map[string][]byte{}}, time.Hour)
	policyEngine := policy.NewEngine(store, advisor.NewMatrixAdvisor(), dedupe, time.Second, nil)
	s := New(feature.NewExtractor(), scorer, classifier, policyEngine, configs, nil, nil, nil)

	first, err := s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess(first) error = %v", err)
	}
	if first.Disposition != domain.DispositionApprove {
		t.Fatalf("first disposition = %s, want APPROVE", first.Disposition)
	}

	second, err := s.Assess(ctx, domain.DocTypeCheck, "Acme Corp", cleanCheck())
	if err != nil {
		t.Fatalf("Assess(second) error = %v", err)
	}
	if second.Disposition != domain.DispositionReject {
		t.Errorf("second disposition = %s, want REJECT for duplicate", second.Disposition)
	}
	if second.Finding == nil || second.Finding.Type != domain.FraudDuplicateSubmission {
		t.Errorf("second finding = %+v, want DUPLICATE_SUBMISSION", second.Finding)
	}
}

// memCache is a minimal in-memory Cache for dedupe wiring.
type memCache struct {
	data map[string][]byte
}

func (m memCache) Get(ctx context.Context, key string) ([]byte, error) { return m.data[key], nil }

func (m memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m memCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m memCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, nil
}

func (m memCache) Ping(ctx context.Context) error { return nil }
func (m memCache) Close() error                   { return nil }
