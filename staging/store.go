package staging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"paysync-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Outcome classifies what an upsert did. Unchanged means the polled record
// matched the stored row and no event should be published for it.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Store persists the last known gateway state per natural key.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Upsert writes rec keyed on (merchant_id, transaction_id). First sighting
// inserts and reports Created; a differing poll overwrites in place and
// reports Updated; an identical poll reports Unchanged and writes nothing.
// That suppression is what keeps repeated poll cycles from re-publishing
// events for rows the gateway has not touched.
func (s *Store) Upsert(ctx context.Context, rec models.GatewayRecord) (Outcome, error) {
	var existing models.StagingRecord
	err := s.db.WithContext(ctx).
		Where("merchant_id = ? AND transaction_id = ?", rec.MerchantID, rec.TransactionID).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := rowFromRecord(rec)
		// OnConflict DoNothing covers the race where two poll cycles (e.g.
		// across a restart) see the same new key; the loser re-reads and
		// falls into the update path on the next poll.
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "transaction_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return Unchanged, res.Error
		}
		if res.RowsAffected == 0 {
			return Unchanged, nil
		}
		return Created, nil

	case err != nil:
		return Unchanged, err

	default:
		if !differs(&existing, rec) {
			return Unchanged, nil
		}
		row := rowFromRecord(rec)
		updates := map[string]any{
			"merchant_transaction_id": row.MerchantTransactionID,
			"currency":                row.Currency,
			"amount":                  row.Amount,
			"payment_type":            row.PaymentType,
			"gateway_status":          row.GatewayStatus,
			"account_name":            row.AccountName,
			"requested_at":            row.RequestedAt,
			"raw_payload":             row.RawPayload,
		}
		if err := s.db.WithContext(ctx).
			Model(&models.StagingRecord{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return Unchanged, err
		}
		s.log.Debug("staging row overwritten",
			zap.String("merchant_id", rec.MerchantID),
			zap.String("transaction_id", rec.TransactionID),
			zap.String("gateway_status", rec.GatewayStatus),
		)
		return Updated, nil
	}
}

// differs reports whether the polled record carries anything the stored row
// does not. Only amount, gateway status and account name count: they are
// the fields the gateway actually revises after first sight.
func differs(existing *models.StagingRecord, rec models.GatewayRecord) bool {
	if !existing.Amount.Equal(rec.Amount) {
		return true
	}
	if existing.GatewayStatus != rec.GatewayStatus {
		return true
	}
	if existing.AccountName != rec.AccountName {
		return true
	}
	return false
}

func rowFromRecord(rec models.GatewayRecord) models.StagingRecord {
	raw, _ := json.Marshal(rec)
	return models.StagingRecord{
		MerchantID:            rec.MerchantID,
		TransactionID:         rec.TransactionID,
		MerchantTransactionID: rec.MerchantTransactionID,
		Currency:              rec.Currency,
		Amount:                rec.Amount,
		PaymentType:           rec.PaymentType,
		GatewayStatus:         rec.GatewayStatus,
		AccountName:           rec.AccountName,
		RequestedAt:           rec.RequestedAt,
		RawPayload:            raw,
	}
}

// BalanceStore keeps the latest gateway balance, one row per account.
type BalanceStore struct {
	db *gorm.DB
}

func NewBalanceStore(db *gorm.DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Record overwrites the snapshot for the account in place.
func (b *BalanceStore) Record(ctx context.Context, snap models.BalanceSnapshot) error {
	snap.CapturedAt = time.Now().UTC()
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"fund_in", "fund_out", "captured_at", "updated_at",
		}),
	}).Create(&snap).Error
}

// Latest returns the most recent snapshot for the account.
func (b *BalanceStore) Latest(ctx context.Context, account string) (models.BalanceSnapshot, error) {
	var snap models.BalanceSnapshot
	err := b.db.WithContext(ctx).Where("account = ?", account).First(&snap).Error
	return snap, err
}
