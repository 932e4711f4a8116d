package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction is the authoritative reconciled state of one payment.
// At most one row exists per (payment_id, payment_type); the unique index
// backs that invariant against concurrent duplicate job delivery. Rows are
// only ever mutated by the reconciliation worker and never deleted —
// reversal is the refunded status, not a delete.
type LedgerTransaction struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	PaymentID    string          `json:"payment_id" gorm:"size:128;not null;uniqueIndex:idx_ledger_payment_type,priority:1"`
	PaymentType  PaymentType     `json:"payment_type" gorm:"size:16;not null;uniqueIndex:idx_ledger_payment_type,priority:2"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(20,2)"`
	Currency     string          `json:"currency" gorm:"size:8"`
	Status       Status          `json:"status" gorm:"size:16;index"`
	TransactedAt time.Time       `json:"transacted_at" gorm:"index"`
	OrderNo      string          `json:"order_no" gorm:"size:128;index"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
