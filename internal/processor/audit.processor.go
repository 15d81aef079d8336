package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campuspoints/points-engine/internal/model"
	"github.com/campuspoints/points-engine/internal/queue"
	"github.com/campuspoints/points-engine/internal/repository"
	"github.com/campuspoints/points-engine/pkg/logger"
	"github.com/campuspoints/points-engine/pkg/prom"
)

type AuditLogStore interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) (*model.AuditLogEntry, error)
}

type AuditEventProcessor struct {
	logs        AuditLogStore
	idempotency *IdempotencyService
}

func NewAuditEventProcessor(logs AuditLogStore, idempotency *IdempotencyService) *AuditEventProcessor {
	return &AuditEventProcessor{
		logs:        logs,
		idempotency: idempotency,
	}
}

func (p *AuditEventProcessor) GetType() string {
	return "audit"
}

// Process drains one audit event from the stream into the durable audit
// log, with idempotency guarantees across redeliveries.
func (p *AuditEventProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	// Step 1: Parse event
	var event model.AuditEvent
	err := json.Unmarshal(queueMessage.Data, &event)
	if err != nil {
		logger.Error("Failed to unmarshal audit event", "error", err)
		return err // Return error to trigger DLQ move
	}

	// A transaction can legitimately appear more than once on the stream
	// (created, then processed or replayed), so the idempotency key pairs
	// the transaction with the action.
	eventID := fmt.Sprintf("%d:%s", event.TransactionID, event.Action)

	// Step 2: Acquire processing lock and check idempotency
	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			// Event already recorded - ACK to remove from queue
			logger.Info("Audit event already recorded, skipping", "event_id", eventID)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			// Max retries exceeded - ACK to move to DLQ
			logger.Error("Max retries exceeded", "event_id", eventID)
			return nil
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			// Another consumer is processing - NACK to retry later
			logger.Info("Lock held by another consumer, will retry", "event_id", eventID)
			return errors.New("lock held by another consumer")
		}
		// Unexpected error - NACK to retry
		logger.Error("Failed to acquire lock", "event_id", eventID, "error", err)
		return err
	}

	// Ensure lock is released on exit (if not already marked success/failure)
	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Info("Recording audit event",
		"event_id", eventID,
		"type", event.Type,
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	// Step 3: Persist the audit row
	entry := &model.AuditLogEntry{
		TransactionID: event.TransactionID,
		Action:        event.Action,
		Type:          event.Type,
		Amount:        event.Amount,
		Suspicious:    event.Suspicious,
		Applied:       event.Applied,
		Processed:     event.Processed,
		OccurredAt:    event.OccurredAt,
	}

	_, err = p.logs.Create(ctx, entry)
	if err != nil {
		if errors.Is(err, repository.ErrAuditDuplicate) {
			// Row already exists from a previous delivery - treat as done
			logger.Info("Audit row already present", "event_id", eventID)
			if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
				logger.Error("Failed to mark success", "event_id", eventID, "error", markErr)
			}
			return nil
		}
		logger.Error("Failed to persist audit row", "event_id", eventID, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "event_id", eventID, "error", markErr)
		}
		return err // NACK to retry from queue
	}

	// Step 4: Record metrics and mark success
	prom.IncTransactionAudited(string(event.Type), string(event.Action))
	prom.AddAuditLag(time.Since(event.OccurredAt).Seconds(), string(event.Type))

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("Failed to mark success", "event_id", eventID, "error", markErr)
		// Continue - the row was written
	}

	return nil // ACK message
}
