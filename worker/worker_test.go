package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"paysync-backend/ledger"
	"paysync-backend/models"
	"paysync-backend/queue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeApplier struct {
	outcome ledger.ApplyOutcome
	err     error
	calls   []models.GatewayRecord
}

func (f *fakeApplier) Apply(_ context.Context, rec models.GatewayRecord) (ledger.ApplyOutcome, error) {
	f.calls = append(f.calls, rec)
	return f.outcome, f.err
}

func jobWith(t *testing.T, payload models.ReconcileJob) models.QueueJob {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return models.QueueJob{JobID: "job-1", Queue: "reconcile", Payload: raw}
}

func validPayload() models.ReconcileJob {
	return models.ReconcileJob{
		Op: models.JobOpUpdate,
		Record: models.GatewayRecord{
			MerchantID:    "M1",
			TransactionID: "T1",
			Currency:      "EUR",
			Amount:        decimal.NewFromInt(100),
			GatewayStatus: "SUCCESS",
			PaymentType:   models.PaymentTypePayin,
		},
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestHandleAppliesValidJob(t *testing.T) {
	applier := &fakeApplier{outcome: ledger.Inserted}
	r := New(applier, zap.NewNop())

	res := r.Handle(context.Background(), jobWith(t, validPayload()))
	if res.Verdict != queue.VerdictOk {
		t.Fatalf("verdict: got %v, want Ok (%s)", res.Verdict, res.Reason)
	}
	if len(applier.calls) != 1 || applier.calls[0].TransactionID != "T1" {
		t.Errorf("applier calls: %+v", applier.calls)
	}
}

func TestHandleRejectedTransitionIsOk(t *testing.T) {
	// A stale job is a normal outcome, not a failure: it must be acked so
	// the queue does not retry it forever.
	applier := &fakeApplier{outcome: ledger.Rejected}
	r := New(applier, zap.NewNop())

	if res := r.Handle(context.Background(), jobWith(t, validPayload())); res.Verdict != queue.VerdictOk {
		t.Errorf("verdict: got %v, want Ok", res.Verdict)
	}
}

func TestHandleInfraErrorRetries(t *testing.T) {
	applier := &fakeApplier{err: errors.New("connection refused")}
	r := New(applier, zap.NewNop())

	res := r.Handle(context.Background(), jobWith(t, validPayload()))
	if res.Verdict != queue.VerdictRetry {
		t.Fatalf("verdict: got %v, want Retry", res.Verdict)
	}
	if res.Reason == "" {
		t.Error("retry reason missing")
	}
}

func TestHandleUndecodablePayloadDeadLetters(t *testing.T) {
	applier := &fakeApplier{}
	r := New(applier, zap.NewNop())

	job := models.QueueJob{JobID: "job-1", Payload: []byte("{not json")}
	if res := r.Handle(context.Background(), job); res.Verdict != queue.VerdictDeadLetter {
		t.Fatalf("verdict: got %v, want DeadLetter", res.Verdict)
	}
	if len(applier.calls) != 0 {
		t.Error("ledger touched for undecodable payload")
	}
}

func TestHandleInvalidRecordDeadLetters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.ReconcileJob)
	}{
		{"missing merchant id", func(p *models.ReconcileJob) { p.Record.MerchantID = "" }},
		{"missing transaction id", func(p *models.ReconcileJob) { p.Record.TransactionID = "" }},
		{"missing gateway status", func(p *models.ReconcileJob) { p.Record.GatewayStatus = "" }},
		{"bad payment type", func(p *models.ReconcileJob) { p.Record.PaymentType = "transfer" }},
		{"bad currency", func(p *models.ReconcileJob) { p.Record.Currency = "EURO" }},
		{"negative amount", func(p *models.ReconcileJob) { p.Record.Amount = decimal.NewFromInt(-5) }},
		{"zero amount", func(p *models.ReconcileJob) { p.Record.Amount = decimal.Zero }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			applier := &fakeApplier{}
			r := New(applier, zap.NewNop())

			payload := validPayload()
			c.mutate(&payload)

			res := r.Handle(context.Background(), jobWith(t, payload))
			if res.Verdict != queue.VerdictDeadLetter {
				t.Fatalf("verdict: got %v, want DeadLetter", res.Verdict)
			}
			if len(applier.calls) != 0 {
				t.Error("ledger touched for invalid record")
			}
		})
	}
}

func TestHandleIgnoresOperationHint(t *testing.T) {
	// An "update" hint with no ledger row still inserts; the hint never
	// reaches the decision.
	applier := &fakeApplier{outcome: ledger.Inserted}
	r := New(applier, zap.NewNop())

	payload := validPayload()
	payload.Op = models.JobOpUpdate
	if res := r.Handle(context.Background(), jobWith(t, payload)); res.Verdict != queue.VerdictOk {
		t.Fatalf("verdict: got %v, want Ok", res.Verdict)
	}
}
