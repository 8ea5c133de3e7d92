// Package assess wires the pipeline stages into the single-document
// assessment operation: extract, score, classify, decide, persist,
// publish.
package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kite/internal/classify"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
	"github.com/opensource-finance/kite/internal/policy"
	"github.com/opensource-finance/kite/internal/scoring"
)

var tracer = otel.Tracer("kite-assess")

// engineVersion is stamped into decision metadata.
const engineVersion = "kite-1.0"

// Service runs the assessment pipeline. The repository and event bus
// are optional collaborators: a nil repository skips persistence, a nil
// bus skips publication. The decision itself never depends on either.
type Service struct {
	extractor  *feature.Extractor
	scorer     *scoring.Scorer
	classifier *classify.Engine
	policy     *policy.Engine
	configs    map[domain.DocType]domain.DocTypeConfig

	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
}

// New creates an assessment service.
func New(
	extractor *feature.Extractor,
	scorer *scoring.Scorer,
	classifier *classify.Engine,
	policyEngine *policy.Engine,
	configs map[domain.DocType]domain.DocTypeConfig,
	repo domain.Repository,
	bus domain.EventBus,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if configs == nil {
		configs = domain.DefaultDocTypeConfigs()
	}
	return &Service{
		extractor:  extractor,
		scorer:     scorer,
		classifier: classifier,
		policy:     policyEngine,
		configs:    configs,
		repo:       repo,
		bus:        bus,
		logger:     logger,
	}
}

// Assess runs one document through the full pipeline and returns the
// finalized decision.
//
// An unknown document type or a missing required model artifact aborts
// before any history mutation. Everything past the scoring stage
// produces a decision: the pipeline prefers an ESCALATE over a dropped
// submission.
func (s *Service) Assess(ctx context.Context, docType domain.DocType, entityName string, rec *domain.Record) (*domain.DecisionResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "assess.document",
		trace.WithAttributes(
			attribute.String("doc.type", string(docType)),
		))
	defer span.End()

	if !domain.ValidDocType(docType) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDocType, docType)
	}
	cfg := s.configs[docType]

	vec, err := s.extractor.Extract(docType, rec)
	if err != nil {
		return nil, err
	}
	extractMs := time.Since(start).Milliseconds()

	scoreStart := time.Now()
	assessment, err := s.scorer.Score(vec)
	if err != nil {
		// Missing artifact on a no-fallback type is a configuration
		// error, not a property of the document.
		return nil, fmt.Errorf("scoring %s document: %w", docType, err)
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	finding := s.classifier.Classify(&classify.Input{Vector: vec, Record: rec})

	decisionStart := time.Now()
	outcome, err := s.policy.Decide(ctx, &policy.Input{
		DocType:    docType,
		EntityName: entityName,
		Fields:     recordFields(rec),
		Features:   vec.AsMap(),
		Assessment: assessment,
		Finding:    finding,
		DedupeKey:  policy.DedupeKey(docType, cfg, rec, entityName),
	})
	if err != nil {
		return nil, err
	}
	decisionMs := time.Since(decisionStart).Milliseconds()

	result := &domain.DecisionResult{
		ID:              uuid.New().String(),
		DocType:         docType,
		EntityName:      entityName,
		Score:           assessment.Score,
		RiskLevel:       assessment.RiskLevel,
		Finding:         outcome.Finding,
		Disposition:     outcome.Disposition,
		Reasons:         outcome.Reasons,
		AdvisoryReasons: outcome.AdvisoryReasons,
		SystemError:     outcome.SystemError,
		CreatedAt:       time.Now().UTC(),
		Metadata: domain.DecisionMetadata{
			TraceID:    span.SpanContext().TraceID().String(),
			ExtractMs:  extractMs,
			ScoreMs:    scoreMs,
			DecisionMs: decisionMs,
			TotalMs:    time.Since(start).Milliseconds(),
			Heuristic:  assessment.Heuristic,
			Version:    engineVersion,
		},
	}

	span.SetAttributes(
		attribute.String("decision.disposition", string(result.Disposition)),
		attribute.Float64("decision.score", result.Score),
	)

	s.persist(ctx, result)
	s.publish(ctx, result)

	s.logger.Info("document assessed",
		"id", result.ID,
		"docType", docType,
		"disposition", result.Disposition,
		"riskLevel", result.RiskLevel,
		"score", result.Score,
		"totalMs", result.Metadata.TotalMs,
	)
	return result, nil
}

// persist saves the decision. Persistence failure is logged, not
// propagated: the disposition is already final and recorded in history.
func (s *Service) persist(ctx context.Context, result *domain.DecisionResult) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveDecision(ctx, result); err != nil {
		s.logger.Error("failed to persist decision", "id", result.ID, "error", err)
	}
}

// publish emits the decision event, and an alert event for rejections.
func (s *Service) publish(ctx context.Context, result *domain.DecisionResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to marshal decision event", "id", result.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		s.logger.Error("failed to publish decision", "id", result.ID, "error", err)
	}
	if result.Disposition == domain.DispositionReject {
		if err := s.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			s.logger.Error("failed to publish alert", "id", result.ID, "error", err)
		}
	}
}

func recordFields(rec *domain.Record) map[string]any {
	if rec == nil {
		return map[string]any{}
	}
	return rec.Fields
}
