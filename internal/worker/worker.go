// Package worker provides async document processing from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kite/internal/assess"
	"github.com/opensource-finance/kite/internal/domain"
)

// Worker consumes submissions from the document-received topic and runs
// them through the assessment pipeline. The pipeline itself persists
// and publishes the decision; the worker only feeds it.
type Worker struct {
	bus     domain.EventBus
	service *assess.Service
	logger  *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *assess.Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the document-received topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicDocumentReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started", "topic", domain.TopicDocumentReceived)
	return nil
}

// handleMessage parses a submission and assesses it.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var sub domain.Submission
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		w.logger.Error("failed to parse submission",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.logger.Debug("processing submission",
		"submission_id", sub.ID,
		"doc_type", sub.DocType,
	)

	result, err := w.service.Assess(ctx, sub.DocType, sub.EntityName, sub.Record)
	if err != nil {
		w.logger.Error("assessment failed",
			"submission_id", sub.ID,
			"doc_type", sub.DocType,
			"error", err,
		)
		return err
	}

	w.logger.Info("submission processed",
		"submission_id", sub.ID,
		"decision_id", result.ID,
		"disposition", result.Disposition,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
