package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"paysync-backend/events"
	"paysync-backend/models"
	"paysync-backend/staging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeClient struct {
	records []models.GatewayRecord
	listErr error
	balance Balance
	balErr  error
}

func (f *fakeClient) ListTransactions(_ context.Context, from, to time.Time) (PollResult, error) {
	if f.listErr != nil {
		return PollResult{}, f.listErr
	}
	return PollResult{Records: f.records, WindowStart: from, WindowEnd: to}, nil
}

func (f *fakeClient) Balance(_ context.Context) (Balance, error) {
	return f.balance, f.balErr
}

type fakeStager struct {
	outcomes map[string]staging.Outcome
	err      error
	seen     []string
}

func (f *fakeStager) Upsert(_ context.Context, rec models.GatewayRecord) (staging.Outcome, error) {
	f.seen = append(f.seen, rec.TransactionID)
	if f.err != nil {
		return staging.Unchanged, f.err
	}
	return f.outcomes[rec.TransactionID], nil
}

type fakeBus struct {
	published []events.RecordEvent
	honorCtx  bool // refuse cancelled contexts, like the real bounded bus
}

func (f *fakeBus) Publish(ctx context.Context, ev events.RecordEvent) bool {
	if f.honorCtx && ctx.Err() != nil {
		return false
	}
	f.published = append(f.published, ev)
	return true
}

type fakeBalances struct {
	snaps []models.BalanceSnapshot
	err   error
}

func (f *fakeBalances) Record(_ context.Context, snap models.BalanceSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func rec(txnID string) models.GatewayRecord {
	return models.GatewayRecord{
		MerchantID:    "M1",
		TransactionID: txnID,
		Currency:      "EUR",
		Amount:        decimal.NewFromInt(100),
		GatewayStatus: "SUCCESS",
		PaymentType:   models.PaymentTypePayin,
	}
}

func newTestPoller(c Client, s Stager, b Publisher, bal BalanceSink) *Poller {
	return NewPoller(c, s, b, bal, "default",
		time.Minute, 15*time.Minute, 5*time.Second, zap.NewNop())
}

func TestCyclePublishesPerOutcome(t *testing.T) {
	client := &fakeClient{
		records: []models.GatewayRecord{rec("T1"), rec("T2"), rec("T3")},
		balance: Balance{FundIn: decimal.NewFromInt(500), FundOut: decimal.NewFromInt(-60)},
	}
	stager := &fakeStager{outcomes: map[string]staging.Outcome{
		"T1": staging.Created,
		"T2": staging.Updated,
		"T3": staging.Unchanged,
	}}
	bus := &fakeBus{}
	balances := &fakeBalances{}

	p := newTestPoller(client, stager, bus, balances)
	p.cycle(context.Background())

	if len(stager.seen) != 3 {
		t.Fatalf("staged %d records, want 3", len(stager.seen))
	}
	if len(bus.published) != 2 {
		t.Fatalf("published %d events, want 2 (unchanged suppressed)", len(bus.published))
	}
	if bus.published[0].Kind != events.KindCreated || bus.published[0].Record.TransactionID != "T1" {
		t.Errorf("first event: %+v", bus.published[0])
	}
	if bus.published[1].Kind != events.KindUpdated || bus.published[1].Record.TransactionID != "T2" {
		t.Errorf("second event: %+v", bus.published[1])
	}

	if len(balances.snaps) != 1 {
		t.Fatalf("recorded %d balance snapshots, want 1", len(balances.snaps))
	}
	if got := balances.snaps[0]; got.Account != "default" || !got.FundIn.Equal(decimal.NewFromInt(500)) {
		t.Errorf("snapshot: %+v", got)
	}
}

func TestCycleSkippedWhenGatewayDown(t *testing.T) {
	client := &fakeClient{listErr: errors.New("gateway timeout")}
	stager := &fakeStager{}
	bus := &fakeBus{}
	balances := &fakeBalances{}

	p := newTestPoller(client, stager, bus, balances)
	p.cycle(context.Background())

	if len(stager.seen) != 0 || len(bus.published) != 0 || len(balances.snaps) != 0 {
		t.Error("failed poll must be a no-op until the next tick")
	}
}

func TestCycleContinuesPastStagingError(t *testing.T) {
	client := &fakeClient{records: []models.GatewayRecord{rec("T1"), rec("T2")}}
	stager := &fakeStager{err: errors.New("db down")}
	bus := &fakeBus{}
	balances := &fakeBalances{}

	p := newTestPoller(client, stager, bus, balances)
	p.cycle(context.Background())

	// Both records attempted despite the first failing; nothing published.
	if len(stager.seen) != 2 {
		t.Errorf("staged attempts: got %d, want 2", len(stager.seen))
	}
	if len(bus.published) != 0 {
		t.Errorf("published %d events for failed upserts", len(bus.published))
	}
}

func TestBalanceFailureDoesNotBlockRecords(t *testing.T) {
	client := &fakeClient{
		records: []models.GatewayRecord{rec("T1")},
		balErr:  errors.New("balance endpoint down"),
	}
	stager := &fakeStager{outcomes: map[string]staging.Outcome{"T1": staging.Created}}
	bus := &fakeBus{}
	balances := &fakeBalances{}

	p := newTestPoller(client, stager, bus, balances)
	p.cycle(context.Background())

	if len(bus.published) != 1 {
		t.Errorf("record pipeline affected by balance failure: %d events", len(bus.published))
	}
	if len(balances.snaps) != 0 {
		t.Error("snapshot recorded despite balance error")
	}
}

func TestPublishFallsBackToGraceWindowAtShutdown(t *testing.T) {
	// Staging has already been overwritten when publish runs, so an event
	// refused because shutdown cancelled the cycle context must still reach
	// the bus through the grace window.
	bus := &fakeBus{honorCtx: true}
	p := newTestPoller(&fakeClient{}, &fakeStager{}, bus, &fakeBalances{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.publish(ctx, events.KindUpdated, rec("T1"))

	if len(bus.published) != 1 {
		t.Fatalf("event lost at shutdown: published %d, want 1", len(bus.published))
	}
	if bus.published[0].Record.TransactionID != "T1" {
		t.Errorf("event: %+v", bus.published[0])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &fakeClient{}
	p := newTestPoller(client, &fakeStager{}, &fakeBus{}, &fakeBalances{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}
