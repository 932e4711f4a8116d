package ledger

import (
	"context"
	"errors"
	"time"

	"paysync-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyOutcome classifies what one reconcile pass did to the ledger.
type ApplyOutcome int

const (
	// Inserted: no row existed for the key, a new one was created.
	Inserted ApplyOutcome = iota
	// Transitioned: the existing row accepted the update.
	Transitioned
	// Rejected: the requested status transition is illegal; the row was
	// left untouched. This is a normal outcome of out-of-order delivery,
	// not an error.
	Rejected
)

// Store owns all writes to ledger_transactions. Reads are exposed to the
// surrounding application; writes happen only through Apply, called by the
// reconciliation worker.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Apply converges one gateway record into the ledger as a single atomic
// unit: row lock, insert-if-absent, otherwise validate-and-transition.
// Absent rows are created regardless of how the job was hinted — an update
// whose create was never seen (suppressed poll, restart) is an implicit
// create. Two concurrent duplicates cannot double-insert: the loser of the
// unique-index race re-reads the winner's row under lock and falls through
// to the transition path.
func (s *Store) Apply(ctx context.Context, rec models.GatewayRecord) (ApplyOutcome, error) {
	outcome := Rejected
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.LedgerTransaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("payment_id = ? AND payment_type = ?", rec.TransactionID, rec.PaymentType).
			First(&cur).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := NewTransaction(rec, time.Now().UTC())
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "payment_id"}, {Name: "payment_type"}},
				DoNothing: true,
			}).Create(&row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				outcome = Inserted
				return nil
			}
			// Lost the insert race; lock the winner and transition.
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("payment_id = ? AND payment_type = ?", rec.TransactionID, rec.PaymentType).
				First(&cur).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if !ApplyToExisting(&cur, rec, time.Now().UTC()) {
			s.log.Info("illegal status transition rejected",
				zap.String("payment_id", cur.PaymentID),
				zap.String("payment_type", string(cur.PaymentType)),
				zap.String("current", string(cur.Status)),
				zap.String("requested", string(models.MapGatewayStatus(rec.GatewayStatus))),
			)
			outcome = Rejected
			return nil
		}

		if err := tx.Model(&models.LedgerTransaction{}).
			Where("id = ?", cur.ID).
			Updates(map[string]any{
				"amount":        cur.Amount,
				"status":        cur.Status,
				"transacted_at": cur.TransactedAt,
				"updated_at":    cur.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		outcome = Transitioned
		return nil
	})
	return outcome, err
}

// NewTransaction builds the ledger row for a key's first reconciliation.
func NewTransaction(rec models.GatewayRecord, now time.Time) models.LedgerTransaction {
	return models.LedgerTransaction{
		PaymentID:    rec.TransactionID,
		PaymentType:  rec.PaymentType,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		Status:       models.MapGatewayStatus(rec.GatewayStatus),
		TransactedAt: rec.RequestedAt,
		OrderNo:      rec.MerchantTransactionID,
		UpdatedAt:    now,
	}
}

// ApplyToExisting mutates cur from rec if the status transition is legal
// and reports whether anything was applied. The decision lives here, pure,
// so the convergence properties can be exercised without a database.
func ApplyToExisting(cur *models.LedgerTransaction, rec models.GatewayRecord, now time.Time) bool {
	next := models.MapGatewayStatus(rec.GatewayStatus)
	if !cur.Status.CanTransitionTo(next) {
		return false
	}
	cur.Amount = rec.Amount
	cur.Status = next
	if !rec.RequestedAt.IsZero() {
		cur.TransactedAt = rec.RequestedAt
	}
	cur.UpdatedAt = now
	return true
}
