package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"paysync-backend/ledger"
	"paysync-backend/models"
	"paysync-backend/queue"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Applier is the single ledger write surface. Satisfied by *ledger.Store.
type Applier interface {
	Apply(ctx context.Context, rec models.GatewayRecord) (ledger.ApplyOutcome, error)
}

// Reconciler is the queue handler that converges reconcile jobs into the
// ledger. It trusts nothing about the job except the record itself: the
// operation hint is ignored for correctness, order of arrival is ignored
// (the ledger's transition validation absorbs reordering), and duplicates
// are absorbed by the idempotent apply.
type Reconciler struct {
	ledger   Applier
	validate *validator.Validate
	log      *zap.Logger
}

func New(applier Applier, log *zap.Logger) *Reconciler {
	return &Reconciler{
		ledger:   applier,
		validate: validator.New(),
		log:      log,
	}
}

// Handle processes one delivered job.
// Malformed payloads dead-letter immediately: retrying cannot fix a record
// that is missing its natural key. Infrastructure errors retry with the
// queue's backoff. An illegal transition is a logged no-op and reports Ok.
func (r *Reconciler) Handle(ctx context.Context, job models.QueueJob) queue.Result {
	var payload models.ReconcileJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.DeadLetter(fmt.Sprintf("undecodable payload: %v", err))
	}
	if err := r.validate.Struct(payload.Record); err != nil {
		return queue.DeadLetter(fmt.Sprintf("invalid gateway record: %v", err))
	}
	if !payload.Record.Amount.IsPositive() {
		return queue.DeadLetter("invalid gateway record: non-positive amount")
	}

	outcome, err := r.ledger.Apply(ctx, payload.Record)
	if err != nil {
		return queue.Retry(fmt.Sprintf("ledger apply: %v", err))
	}

	switch outcome {
	case ledger.Inserted:
		r.log.Info("ledger transaction created",
			zap.String("payment_id", payload.Record.TransactionID),
			zap.String("payment_type", string(payload.Record.PaymentType)),
			zap.String("op_hint", payload.Op),
		)
	case ledger.Transitioned:
		r.log.Info("ledger transaction updated",
			zap.String("payment_id", payload.Record.TransactionID),
			zap.String("payment_type", string(payload.Record.PaymentType)),
			zap.String("gateway_status", payload.Record.GatewayStatus),
		)
	case ledger.Rejected:
		// Out-of-order delivery; the row already holds a later state.
		r.log.Debug("stale reconcile job discarded",
			zap.String("payment_id", payload.Record.TransactionID),
			zap.String("gateway_status", payload.Record.GatewayStatus),
		)
	}
	return queue.Ok()
}
