package ledger

import (
	"testing"
	"time"

	"paysync-backend/models"

	"github.com/shopspring/decimal"
)

// memLedger drives the real reconcile decision logic (NewTransaction +
// ApplyToExisting) over a map, standing in for the transactional store so
// the convergence properties can run without Postgres.
type memLedger struct {
	rows map[string]*models.LedgerTransaction
	now  time.Time
}

func newMemLedger() *memLedger {
	return &memLedger{
		rows: map[string]*models.LedgerTransaction{},
		now:  time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memLedger) apply(rec models.GatewayRecord) ApplyOutcome {
	key := rec.TransactionID + "/" + string(rec.PaymentType)
	if cur, ok := m.rows[key]; ok {
		if ApplyToExisting(cur, rec, m.now) {
			return Transitioned
		}
		return Rejected
	}
	row := NewTransaction(rec, m.now)
	m.rows[key] = &row
	return Inserted
}

func (m *memLedger) get(t *testing.T, paymentID string, pt models.PaymentType) *models.LedgerTransaction {
	t.Helper()
	row, ok := m.rows[paymentID+"/"+string(pt)]
	if !ok {
		t.Fatalf("no ledger row for %s/%s", paymentID, pt)
	}
	return row
}

func record(txnID, status string, amount int64) models.GatewayRecord {
	return models.GatewayRecord{
		MerchantTransactionID: "ORD-" + txnID,
		MerchantID:            "M1",
		TransactionID:         txnID,
		Currency:              "EUR",
		Amount:                decimal.NewFromInt(amount),
		RequestedAt:           time.Date(2026, 8, 15, 8, 30, 0, 0, time.UTC),
		GatewayStatus:         status,
		PaymentType:           models.PaymentTypePayin,
	}
}

func TestFirstSightingInsertsMappedStatus(t *testing.T) {
	m := newMemLedger()

	if got := m.apply(record("T1", "SUCCESS", 100)); got != Inserted {
		t.Fatalf("outcome: got %v, want Inserted", got)
	}

	row := m.get(t, "T1", models.PaymentTypePayin)
	if row.Status != models.StatusSucceeded {
		t.Errorf("status: got %s, want succeeded", row.Status)
	}
	if !row.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("amount: got %s", row.Amount)
	}
	if row.PaymentID != "T1" || row.OrderNo != "ORD-T1" {
		t.Errorf("identity fields: %+v", row)
	}
}

func TestIdempotence(t *testing.T) {
	once := newMemLedger()
	twice := newMemLedger()

	rec := record("T1", "SUCCESS", 100)
	once.apply(rec)
	twice.apply(rec)
	twice.apply(rec)

	a := once.get(t, "T1", models.PaymentTypePayin)
	b := twice.get(t, "T1", models.PaymentTypePayin)
	if a.Status != b.Status || !a.Amount.Equal(b.Amount) || a.TransactedAt != b.TransactedAt {
		t.Errorf("duplicate delivery diverged: once=%+v twice=%+v", a, b)
	}
	if len(twice.rows) != 1 {
		t.Errorf("uniqueness violated: %d rows", len(twice.rows))
	}
}

func TestConvergenceUnderReordering(t *testing.T) {
	pending := record("T1", "PENDING", 100)
	succeeded := record("T1", "SUCCESS", 100)

	inOrder := newMemLedger()
	inOrder.apply(pending)
	inOrder.apply(succeeded)

	reordered := newMemLedger()
	reordered.apply(succeeded)
	reordered.apply(pending) // stale update arrives late

	a := inOrder.get(t, "T1", models.PaymentTypePayin)
	b := reordered.get(t, "T1", models.PaymentTypePayin)
	if a.Status != models.StatusSucceeded || b.Status != models.StatusSucceeded {
		t.Errorf("final states: in-order=%s reordered=%s, want succeeded both ways", a.Status, b.Status)
	}
}

func TestIllegalTransitionLeavesRowUntouched(t *testing.T) {
	m := newMemLedger()
	m.apply(record("T1", "SUCCESS", 100))

	before := *m.get(t, "T1", models.PaymentTypePayin)
	if got := m.apply(record("T1", "PENDING", 999)); got != Rejected {
		t.Fatalf("outcome: got %v, want Rejected", got)
	}

	after := m.get(t, "T1", models.PaymentTypePayin)
	if after.Status != before.Status || !after.Amount.Equal(before.Amount) {
		t.Errorf("rejected transition mutated row: before=%+v after=%+v", before, after)
	}
}

func TestFailedIsTerminal(t *testing.T) {
	m := newMemLedger()
	m.apply(record("T1", "FAILED", 100))

	if got := m.apply(record("T1", "SUCCESS", 100)); got != Rejected {
		t.Errorf("failed -> succeeded accepted, want Rejected")
	}
}

func TestRefundFlow(t *testing.T) {
	m := newMemLedger()
	m.apply(record("T1", "SUCCESS", 100))

	if got := m.apply(record("T1", "REFUNDED", 100)); got != Transitioned {
		t.Fatalf("succeeded -> refunded: got %v, want Transitioned", got)
	}
	if row := m.get(t, "T1", models.PaymentTypePayin); row.Status != models.StatusRefunded {
		t.Errorf("status: got %s, want refunded", row.Status)
	}
}

func TestPayinPayoutAreSeparateRows(t *testing.T) {
	m := newMemLedger()
	payin := record("T1", "SUCCESS", 100)
	payout := record("T1", "SUCCESS", 40)
	payout.PaymentType = models.PaymentTypePayout

	m.apply(payin)
	m.apply(payout)

	if len(m.rows) != 2 {
		t.Fatalf("got %d rows, want 2 (one per payment type)", len(m.rows))
	}
}

func TestApplyToExistingKeepsTransactedAtForZeroTime(t *testing.T) {
	m := newMemLedger()
	m.apply(record("T1", "PENDING", 100))
	orig := m.get(t, "T1", models.PaymentTypePayin).TransactedAt

	update := record("T1", "SUCCESS", 100)
	update.RequestedAt = time.Time{}
	m.apply(update)

	if got := m.get(t, "T1", models.PaymentTypePayin).TransactedAt; got != orig {
		t.Errorf("zero requestedAt overwrote transacted_at: %s", got)
	}
}
