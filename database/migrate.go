package database

import (
	"fmt"

	"paysync-backend/models"

	"gorm.io/gorm"
)

// Migrate applies (idempotent) schema migrations for the pipeline:
// - AutoMigrate (tables/columns/index tags)
// - Money column types (NUMERIC(20,2))
// - The uniqueness guarantees behind the staging and ledger invariants
// - Basic CHECK constraints on lifecycle enums
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		// --- AutoMigrate tables/columns/index tags (non-destructive) ---
		if err := tx.AutoMigrate(
			&models.StagingRecord{},
			&models.LedgerTransaction{},
			&models.BalanceSnapshot{},
			&models.QueueJob{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		// --- Enforce money columns as NUMERIC(20,2) (idempotent ALTERs) ---
		alters := []string{
			`ALTER TABLE staging_records      ALTER COLUMN amount   TYPE numeric(20,2)`,
			`ALTER TABLE ledger_transactions  ALTER COLUMN amount   TYPE numeric(20,2)`,
			`ALTER TABLE balance_snapshots    ALTER COLUMN fund_in  TYPE numeric(20,2)`,
			`ALTER TABLE balance_snapshots    ALTER COLUMN fund_out TYPE numeric(20,2)`,
		}
		for _, stmt := range alters {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("money type migration failed on: %s - %w", stmt, err)
			}
		}

		// --- Uniqueness behind the core invariants (idempotent) ---
		// One staging row per natural key; at most one ledger row per
		// (payment_id, payment_type). The ledger index is what makes a
		// concurrent double-insert impossible, not just unlikely.
		indexes := []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_staging_merchant_txn ON staging_records (merchant_id, transaction_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_payment_type ON ledger_transactions (payment_id, payment_type)`,
			`CREATE INDEX IF NOT EXISTS idx_queue_jobs_claim ON queue_jobs (queue, status, run_at)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		// --- Basic CHECK constraints (idempotent) ---
		checks := []string{
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'ledger_transactions'::regclass
					  AND conname  = 'chk_ledger_status'
				) THEN
					ALTER TABLE ledger_transactions
					ADD CONSTRAINT chk_ledger_status
					CHECK (status IN ('pending','succeeded','failed','refunded'));
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'queue_jobs'::regclass
					  AND conname  = 'chk_queue_jobs_status'
				) THEN
					ALTER TABLE queue_jobs
					ADD CONSTRAINT chk_queue_jobs_status
					CHECK (status IN ('pending','in_flight','dead'));
				END IF;
			END $$;`,
			`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = 'queue_jobs'::regclass
					  AND conname  = 'chk_queue_jobs_attempts_nonneg'
				) THEN
					ALTER TABLE queue_jobs
					ADD CONSTRAINT chk_queue_jobs_attempts_nonneg
					CHECK (attempts >= 0);
				END IF;
			END $$;`,
		}
		for _, stmt := range checks {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed: %w", err)
			}
		}

		return nil
	})
}
