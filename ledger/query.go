package ledger

import (
	"context"
	"time"

	"paysync-backend/models"

	"gorm.io/gorm"
)

// Filter narrows List. Zero values mean "no constraint".
type Filter struct {
	PaymentType models.PaymentType
	Status      models.Status
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// List returns ledger rows matching the filter plus the unpaginated total.
func (s *Store) List(ctx context.Context, f Filter) ([]models.LedgerTransaction, int64, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Fresh query for data to avoid side effects from Count.
	var rows []models.LedgerTransaction
	err := s.filtered(ctx, f).
		Order("transacted_at DESC, id DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&rows).Error
	return rows, total, err
}

func (s *Store) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.LedgerTransaction{})
	if f.PaymentType != "" {
		q = q.Where("payment_type = ?", f.PaymentType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("transacted_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("transacted_at < ?", f.To)
	}
	return q
}

// GetByID looks up a row by internal id.
func (s *Store) GetByID(ctx context.Context, id uint) (models.LedgerTransaction, error) {
	var row models.LedgerTransaction
	err := s.db.WithContext(ctx).First(&row, id).Error
	return row, err
}

// GetByPaymentID looks up a row by the gateway's transaction id. The same
// id can exist once per payment type; without a type constraint the payin
// row wins so repeated lookups stay deterministic.
func (s *Store) GetByPaymentID(ctx context.Context, paymentID string, pt models.PaymentType) (models.LedgerTransaction, error) {
	var row models.LedgerTransaction
	q := s.db.WithContext(ctx).Where("payment_id = ?", paymentID)
	if pt != "" {
		q = q.Where("payment_type = ?", pt)
	}
	err := q.Order("payment_type, id").First(&row).Error
	return row, err
}
