package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kite/internal/assess"
	"github.com/opensource-finance/kite/internal/classify"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service    *assess.Service
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	history    domain.HistoryStore
	classifier *classify.Engine
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(service *assess.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, history domain.HistoryStore, classifier *classify.Engine, version string) *Handler {
	return &Handler{
		service:    service,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		history:    history,
		classifier: classifier,
		version:    version,
	}
}

// AssessRequest is the request body for POST /assess.
type AssessRequest struct {
	DocType    domain.DocType `json:"docType"`
	EntityName string         `json:"entityName"`
	Record     *domain.Record `json:"record"`
}

// Assess handles POST /assess requests synchronously.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if !domain.ValidDocType(req.DocType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "docType must be one of: check, money_order, paystub, bank_statement",
		})
		return
	}
	if req.EntityName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entityName is required",
		})
		return
	}
	if req.Record == nil || len(req.Record.Fields) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record.fields is required",
		})
		return
	}

	result, err := h.service.Assess(ctx, req.DocType, req.EntityName, req.Record)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownDocType):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrModelArtifact):
			slog.Error("scoring configuration error", "doc_type", req.DocType, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "scoring model unavailable for document type",
			})
		default:
			slog.Error("assessment failed", "doc_type", req.DocType, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "assessment failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SubmitAsync handles POST /submit: publishes a submission to the
// document-received topic for async processing by the worker.
func (h *Handler) SubmitAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if !domain.ValidDocType(req.DocType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "docType must be one of: check, money_order, paystub, bank_statement",
		})
		return
	}

	sub := domain.Submission{
		ID:         uuid.New().String(),
		DocType:    req.DocType,
		EntityName: req.EntityName,
		Record:     req.Record,
		TraceID:    GetTraceID(ctx),
	}
	payload, _ := json.Marshal(sub)

	if err := h.bus.Publish(ctx, domain.TopicDocumentReceived, payload); err != nil {
		slog.Error("failed to publish submission", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue submission",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"submissionId": sub.ID,
		"status":       "queued",
	})
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetDecision(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get decision", "id", id, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// EntityHistoryResponse is the response for GET /entities/{name}/history.
type EntityHistoryResponse struct {
	History   *domain.EntityAggregate  `json:"history"`
	Decisions []*domain.DecisionResult `json:"decisions,omitempty"`
}

// GetEntityHistory returns the aggregated history and recent decisions
// for an entity.
func (h *Handler) GetEntityHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity name is required",
		})
		return
	}

	agg, err := h.history.Lookup(ctx, name)
	if err != nil {
		slog.Error("failed to look up entity history", "entity", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to look up entity history",
		})
		return
	}

	resp := EntityHistoryResponse{History: agg}
	if h.repo != nil {
		decisions, err := h.repo.ListDecisionsByEntity(ctx, name, 50)
		if err != nil {
			slog.Error("failed to list decisions", "entity", name, "error", err)
		} else {
			resp.Decisions = decisions
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRules returns all custom rules currently loaded in the classifier.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.classifier.CustomRules().Loaded()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetRule retrieves a custom rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.classifier.CustomRules().Loaded() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	DocType     domain.DocType   `json:"docType"`
	Expression  string           `json:"expression"`
	FraudType   domain.FraudType `json:"fraudType"`
	Severity    int              `json:"severity"`
	Reason      string           `json:"reason"`
	Enabled     bool             `json:"enabled"`
}

// CreateRule validates, persists, and loads a custom classification
// rule. Validation compiles the CEL expression before anything is
// saved.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Severity < 0 || req.Severity > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be between 0 and 100",
		})
		return
	}

	rule := &domain.CustomRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		DocType:     req.DocType,
		Expression:  req.Expression,
		FraudType:   req.FraudType,
		Severity:    req.Severity,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	if err := h.classifier.CustomRules().Validate(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveCustomRule(ctx, rule); err != nil {
			slog.Error("failed to save custom rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.classifier.CustomRules().Load(rule); err != nil {
			slog.Error("failed to load custom rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("custom rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// ReloadRules replaces the loaded custom rules with the enabled set
// from the database. Enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListCustomRules(ctx)
	if err != nil {
		slog.Error("failed to list custom rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.classifier.CustomRules().Reload(dbRules); err != nil {
		slog.Error("failed to reload custom rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.classifier.CustomRules().Count()
	slog.Info("custom rules reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
