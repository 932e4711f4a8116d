package gateway

import (
	"context"
	"time"

	"paysync-backend/events"
	"paysync-backend/models"
	"paysync-backend/staging"

	"go.uber.org/zap"
)

// publishGrace bounds the second publish attempt for events caught in hand
// when shutdown cancels the poll context.
const publishGrace = 5 * time.Second

// Stager is the staging surface the poller writes through.
type Stager interface {
	Upsert(ctx context.Context, rec models.GatewayRecord) (staging.Outcome, error)
}

// Publisher hands staging changes to the reconcile pipeline.
type Publisher interface {
	Publish(ctx context.Context, ev events.RecordEvent) bool
}

// BalanceSink records the latest gateway balance snapshot.
type BalanceSink interface {
	Record(ctx context.Context, snap models.BalanceSnapshot) error
}

// Poller drives the gateway on a periodic timer. Cycles never overlap
// (the next tick waits for the previous cycle to finish) and each cycle
// runs under its own timeout. A gateway failure skips the cycle; it is
// retried on the next tick, never escalated.
type Poller struct {
	client   Client
	stager   Stager
	bus      Publisher
	balances BalanceSink
	account  string
	interval time.Duration
	window   time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

func NewPoller(client Client, stager Stager, bus Publisher, balances BalanceSink, account string, interval, window, timeout time.Duration, log *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		stager:   stager,
		bus:      bus,
		balances: balances,
		account:  account,
		interval: interval,
		window:   window,
		timeout:  timeout,
		log:      log,
	}
}

// Run polls until ctx is cancelled. The first cycle fires immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := p.client.ListTransactions(cctx, now.Add(-p.window), now)
	if err != nil {
		p.log.Warn("gateway poll failed, cycle skipped", zap.Error(err))
		return
	}

	var created, updated int
	for _, rec := range res.Records {
		outcome, err := p.stager.Upsert(cctx, rec)
		if err != nil {
			p.log.Error("staging upsert failed",
				zap.String("merchant_id", rec.MerchantID),
				zap.String("transaction_id", rec.TransactionID),
				zap.Error(err),
			)
			continue
		}

		switch outcome {
		case staging.Created:
			created++
			p.publish(ctx, events.KindCreated, rec)
		case staging.Updated:
			updated++
			p.publish(ctx, events.KindUpdated, rec)
		}
	}

	if bal, err := p.client.Balance(cctx); err != nil {
		p.log.Warn("gateway balance fetch failed", zap.Error(err))
	} else if err := p.balances.Record(cctx, models.BalanceSnapshot{
		Account: p.account,
		FundIn:  bal.FundIn,
		FundOut: bal.FundOut,
	}); err != nil {
		p.log.Error("balance snapshot write failed", zap.Error(err))
	}

	if created > 0 || updated > 0 {
		p.log.Info("poll cycle complete",
			zap.Int("records", len(res.Records)),
			zap.Int("created", created),
			zap.Int("updated", updated),
		)
	}
}

func (p *Poller) publish(ctx context.Context, kind events.Kind, rec models.GatewayRecord) {
	// Publish blocks on a full bus rather than dropping; use the outer ctx
	// so a slow pipeline does not count against the poll timeout.
	ev := events.RecordEvent{
		Kind:       kind,
		Record:     rec,
		ObservedAt: time.Now().UTC(),
	}
	if p.bus.Publish(ctx, ev) {
		return
	}

	// Shutdown raced the cycle with the staging row already overwritten.
	// Give the event one grace window before declaring it lost.
	gctx, cancel := context.WithTimeout(context.Background(), publishGrace)
	defer cancel()
	if !p.bus.Publish(gctx, ev) {
		p.log.Error("event lost at shutdown",
			zap.String("transaction_id", rec.TransactionID),
			zap.String("kind", string(kind)),
		)
	}
}
