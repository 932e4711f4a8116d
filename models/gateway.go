package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType distinguishes money moving into vs. out of the merchant account.
type PaymentType string

const (
	PaymentTypePayin  PaymentType = "payin"
	PaymentTypePayout PaymentType = "payout"
)

// GatewayRecord is one transaction as the payment provider reports it.
// Field names follow the provider's JSON; the natural key is
// (merchant_id, transaction_id).
type GatewayRecord struct {
	MerchantTransactionID string          `json:"merchantTransactionId"`
	MerchantID            string          `json:"merchantId" validate:"required"`
	TransactionID         string          `json:"transactionId" validate:"required"`
	Currency              string          `json:"currency" validate:"required,len=3"`
	Amount                decimal.Decimal `json:"amount"`
	RequestedAt           time.Time       `json:"requestedAt"`
	GatewayStatus         string          `json:"gatewayStatus" validate:"required"`
	PaymentType           PaymentType     `json:"paymentType" validate:"required,oneof=payin payout"`
	AccountName           string          `json:"accountName"`
}

// ReconcileJob is the payload carried by the reconcile queue. The operation
// hint is advisory only: the worker decides create vs. update from what is
// actually in the ledger, never from the hint.
type ReconcileJob struct {
	Op         string        `json:"op"` // "create" | "update"
	Record     GatewayRecord `json:"record"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

const (
	JobOpCreate = "create"
	JobOpUpdate = "update"
)
