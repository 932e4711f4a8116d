package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StagingRecord mirrors the most recently polled gateway state for one
// transaction. One row per (merchant_id, transaction_id); overwritten in
// place on every poll that differs, never appended, never deleted.
type StagingRecord struct {
	ID                    uint            `json:"id" gorm:"primaryKey"`
	MerchantID            string          `json:"merchant_id" gorm:"size:64;not null;uniqueIndex:idx_staging_merchant_txn,priority:1"`
	TransactionID         string          `json:"transaction_id" gorm:"size:128;not null;uniqueIndex:idx_staging_merchant_txn,priority:2"`
	MerchantTransactionID string          `json:"merchant_transaction_id" gorm:"size:128"`
	Currency              string          `json:"currency" gorm:"size:8"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:numeric(20,2)"`
	PaymentType           PaymentType     `json:"payment_type" gorm:"size:16;index"`
	GatewayStatus         string          `json:"gateway_status" gorm:"size:32"`
	AccountName           string          `json:"account_name" gorm:"size:128"`
	RequestedAt           time.Time       `json:"requested_at"`
	RawPayload            datatypes.JSON  `json:"-" gorm:"type:jsonb"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// BalanceSnapshot holds the latest balance reported by the gateway, one row
// per account, overwritten on every successful poll.
type BalanceSnapshot struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Account    string          `json:"account" gorm:"size:64;uniqueIndex"`
	FundIn     decimal.Decimal `json:"fund_in" gorm:"type:numeric(20,2)"`
	FundOut    decimal.Decimal `json:"fund_out" gorm:"type:numeric(20,2)"`
	CapturedAt time.Time       `json:"captured_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
