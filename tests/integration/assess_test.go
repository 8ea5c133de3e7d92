// Package integration exercises the full community-tier stack: sqlite
// repository, database-backed history, LRU cache dedupe, channel bus,
// and the HTTP surface.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/advisor"
	"github.com/opensource-finance/kite/internal/api"
	"github.com/opensource-finance/kite/internal/assess"
	"github.com/opensource-finance/kite/internal/bus"
	"github.com/opensource-finance/kite/internal/cache"
	"github.com/opensource-finance/kite/internal/classify"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/policy"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/scoring"
	"github.com/opensource-finance/kite/internal/worker"
)

type stack struct {
	server *api.Server
	repo   domain.Repository
	store  domain.HistoryStore
	bus    *bus.ChannelBus
	worker *worker.Worker
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kite.db"),
	})
	if err != nil {
		t.Fatalf("repository.New() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	classifier, err := classify.NewEngine()
	if err != nil {
		t.Fatalf("classify.NewEngine() error = %v", err)
	}
	configs := domain.DefaultDocTypeConfigs()
	scorer := scoring.NewScorer(configs, scoring.BuiltinArtifacts())
	store := history.NewSQLStore(repo)

	lru := cache.NewLRUCache(1000)
	t.Cleanup(func() { lru.Close() })
	dedupe := policy.NewDedupeStore(lru, time.Hour)

	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	policyEngine := policy.NewEngine(store, advisor.NewMatrixAdvisor(), dedupe, time.Second, nil)
	service := assess.New(feature.NewExtractor(), scorer, classifier, policyEngine, configs, repo, eventBus, nil)

	w := worker.NewWorker(eventBus, service, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("worker.Start() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	srv := api.NewServer(domain.ServerConfig{}, service, repo, lru, eventBus, store, classifier, "integration")
	return &stack{server: srv, repo: repo, store: store, bus: eventBus, worker: w}
}

func (s *stack) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.server.Router().ServeHTTP(rr, req)
	return rr
}

func (s *stack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.server.Router().ServeHTTP(rr, req)
	return rr
}

func checkBody(entity, checkNumber string) api.AssessRequest {
	return api.AssessRequest{
		DocType:    domain.DocTypeCheck,
		EntityName: entity,
		Record: &domain.Record{Fields: map[string]any{
			"check_number":          checkNumber,
			"date":                  "2025-06-10",
			"payee":                 "Jordan Reyes",
			"payer_name":            entity,
			"bank_name":             "First National",
			"routing_number":        "021000021",
			"account_number":        "123456789",
			"amount":                450.00,
			"amount_in_words_value": 450.00,
			"image_quality":         0.95,
		}},
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

// TestEntityLifecycle walks a known entity through the decision
// lifecycle: a clean submission is approved, resubmitting the same
// check is rejected as a duplicate, and everything is persisted and
// retrievable.
func TestEntityLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	// Known entity with a clean record; a fresh entity would hit the
	// first-submission escalation instead.
	if err := s.store.Record(ctx, "Acme Corp", domain.DispositionApprove); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var approved domain.DecisionResult
	rr := s.post(t, "/assess", checkBody("Acme Corp", "1042"))
	if rr.Code != http.StatusOK {
		t.Fatalf("assess status = %d, body = %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &approved)
	if approved.Disposition != domain.DispositionApprove {
		t.Fatalf("disposition = %s, want APPROVE for clean known entity", approved.Disposition)
	}
	if len(approved.Reasons) == 0 {
		t.Error("Reasons empty, want at least one")
	}

	var dup domain.DecisionResult
	rr = s.post(t, "/assess", checkBody("Acme Corp", "1042"))
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicate assess status = %d", rr.Code)
	}
	decode(t, rr, &dup)
	if dup.Disposition != domain.DispositionReject {
		t.Errorf("duplicate disposition = %s, want REJECT", dup.Disposition)
	}
	if dup.Finding == nil || dup.Finding.Type != domain.FraudDuplicateSubmission {
		t.Errorf("duplicate finding = %+v, want DUPLICATE_SUBMISSION", dup.Finding)
	}

	// Both decisions are retrievable.
	for _, id := range []string{approved.ID, dup.ID} {
		rr := s.get(t, "/decisions/"+id)
		if rr.Code != http.StatusOK {
			t.Errorf("GET /decisions/%s status = %d, want 200", id, rr.Code)
		}
	}

	// Entity history reflects the full run.
	rr = s.get(t, "/entities/Acme%20Corp/history")
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var resp api.EntityHistoryResponse
	decode(t, rr, &resp)
	if resp.History == nil || !resp.History.IsKnown {
		t.Fatalf("History = %+v, want known entity", resp.History)
	}
	if resp.History.RejectCount != 1 || resp.History.EscalateCount != 0 {
		t.Errorf("history = %+v, want 1 reject and 0 escalations", resp.History)
	}
	if resp.History.LastDisposition != domain.DispositionReject {
		t.Errorf("LastDisposition = %s, want REJECT", resp.History.LastDisposition)
	}
	if len(resp.Decisions) != 2 {
		t.Errorf("decisions listed = %d, want 2", len(resp.Decisions))
	}
}

// TestRepeatOffenderRejectedAndAlerted verifies the repeat-offender gate
// fires through the HTTP surface and that rejections fan out on the
// alert topic.
func TestRepeatOffenderRejectedAndAlerted(t *testing.T) {
	s := newStack(t)

	alerts := make(chan []byte, 4)
	_, err := s.bus.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg.Payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// First submission escalates and seeds the offender history.
	rr := s.post(t, "/assess", checkBody("Shadow LLC", "2001"))
	if rr.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rr.Code)
	}

	var result domain.DecisionResult
	rr = s.post(t, "/assess", checkBody("Shadow LLC", "2002"))
	if rr.Code != http.StatusOK {
		t.Fatalf("assess status = %d", rr.Code)
	}
	decode(t, rr, &result)

	if result.Disposition != domain.DispositionReject {
		t.Fatalf("disposition = %s, want REJECT for repeat offender", result.Disposition)
	}
	if result.Finding == nil || result.Finding.Type != domain.FraudRepeatOffender {
		t.Fatalf("finding = %+v, want REPEAT_OFFENDER", result.Finding)
	}

	select {
	case payload := <-alerts:
		var alerted domain.DecisionResult
		if err := json.Unmarshal(payload, &alerted); err != nil {
			t.Fatalf("alert unmarshal: %v", err)
		}
		if alerted.ID != result.ID {
			t.Errorf("alerted decision = %s, want %s", alerted.ID, result.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert published for rejection")
	}
}

// TestAsyncSubmission drives a document through /submit, the channel
// bus, and the worker.
func TestAsyncSubmission(t *testing.T) {
	s := newStack(t)

	decisions := make(chan []byte, 1)
	_, err := s.bus.Subscribe(context.Background(), domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions <- msg.Payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	rr := s.post(t, "/submit", checkBody("Orchid Labs", "3001"))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var queued map[string]string
	decode(t, rr, &queued)
	if queued["submissionId"] == "" || queued["status"] != "queued" {
		t.Fatalf("submit response = %v", queued)
	}

	select {
	case payload := <-decisions:
		var result domain.DecisionResult
		if err := json.Unmarshal(payload, &result); err != nil {
			t.Fatalf("decision unmarshal: %v", err)
		}
		if result.Disposition != domain.DispositionEscalate {
			t.Errorf("async disposition = %s, want ESCALATE for first submission", result.Disposition)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not produce a decision")
	}
}

// TestCustomRuleAffectsClassification creates a rule over the API and
// verifies it changes a subsequent decision.
func TestCustomRuleAffectsClassification(t *testing.T) {
	s := newStack(t)

	rule := api.CreateRuleRequest{
		ID:         "round-amount-watch",
		Name:       "Round amount watch",
		DocType:    domain.DocTypeCheck,
		Expression: `features.amount >= 400.0 && features.amount < 500.0`,
		FraudType:  domain.FraudSuspiciousPattern,
		Severity:   45,
		Reason:     "Amount in watched range",
		Enabled:    true,
	}
	rr := s.post(t, "/rules", rule)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Known entity so the first-submission override does not mask the
	// finding.
	ctx := context.Background()
	if err := s.store.Record(ctx, "Beacon Partners", domain.DispositionApprove); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var result domain.DecisionResult
	rr = s.post(t, "/assess", checkBody("Beacon Partners", "4001"))
	if rr.Code != http.StatusOK {
		t.Fatalf("assess status = %d", rr.Code)
	}
	decode(t, rr, &result)

	if result.Finding == nil || result.Finding.Type != domain.FraudSuspiciousPattern {
		t.Fatalf("finding = %+v, want SUSPICIOUS_PATTERN from the custom rule", result.Finding)
	}
	found := false
	for _, r := range result.Finding.Reasons {
		if r == "Amount in watched range" {
			found = true
		}
	}
	if !found {
		t.Errorf("Finding.Reasons = %v, want the custom rule reason", result.Finding.Reasons)
	}
}
