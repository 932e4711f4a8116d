package events

import (
	"context"
	"time"

	"paysync-backend/models"

	"go.uber.org/zap"
)

// Kind says whether the staging store saw a brand-new key or an overwrite.
// The worker treats it as advisory only.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
)

// RecordEvent is published once per staging change.
type RecordEvent struct {
	Kind       Kind
	Record     models.GatewayRecord
	ObservedAt time.Time
}

// Enqueuer is the queue surface the bus needs. Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any) error
}

// Bus carries staging-change events to the reconcile queue over a bounded
// channel. There is exactly one subscriber: the goroutine started by Run,
// which translates each event into a queue job. It does no business logic.
type Bus struct {
	ch         chan RecordEvent
	enq        Enqueuer
	log        *zap.Logger
	retryDelay time.Duration
	grace      time.Duration // budget for events still in hand at shutdown
}

func NewBus(buffer int, enq Enqueuer, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		ch:         make(chan RecordEvent, buffer),
		enq:        enq,
		log:        log,
		retryDelay: time.Second,
		grace:      5 * time.Second,
	}
}

// Publish hands the event to the subscriber. It blocks when the buffer is
// full rather than dropping: the poller slowing down is acceptable, a lost
// event is not. Returns false only if ctx is cancelled first.
func (b *Bus) Publish(ctx context.Context, ev RecordEvent) bool {
	select {
	case b.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run consumes events until ctx is cancelled, then drains what is already
// buffered before returning. Each event becomes one durable queue job;
// enqueue failures are retried with a flat backoff so the event is never
// silently lost while the process lives.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.ch:
			b.submit(ctx, ev)
		case <-ctx.Done():
			b.drain(ctx)
			return
		}
	}
}

// submit enqueues the event, retrying failures with a flat delay. If ctx
// is cancelled with the event still in hand — shutdown raced the receive —
// the event gets one fresh grace window against a healthy queue instead of
// being dropped; only when that window also expires is the loss surfaced.
func (b *Bus) submit(ctx context.Context, ev RecordEvent) {
	op := models.JobOpUpdate
	if ev.Kind == KindCreated {
		op = models.JobOpCreate
	}
	job := models.ReconcileJob{
		Op:         op,
		Record:     ev.Record,
		EnqueuedAt: time.Now().UTC(),
	}

	sctx := ctx
	graced := false
	for attempt := 1; ; attempt++ {
		if sctx.Err() != nil {
			if !graced {
				graced = true
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(context.Background(), b.grace)
				defer cancel()
				continue
			}
			// The grace window expired too. The next poll will see the
			// staging row as unchanged, so this is surfaced loudly for
			// the operator.
			b.log.Error("reconcile event lost at shutdown",
				zap.String("transaction_id", ev.Record.TransactionID),
				zap.String("kind", string(ev.Kind)),
			)
			return
		}

		err := b.enq.Enqueue(sctx, job)
		if err == nil {
			return
		}
		b.log.Error("enqueue reconcile job failed",
			zap.String("transaction_id", ev.Record.TransactionID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-time.After(b.retryDelay):
		case <-sctx.Done():
		}
	}
}

// drain flushes buffered events; submit gives each its own grace window.
func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case ev := <-b.ch:
			b.submit(ctx, ev)
		default:
			return
		}
	}
}
