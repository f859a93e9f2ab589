package infra

import (
	"fmt"

	"vallenar/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial unique indexes, CHECK constraints, sequences).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates the schema. Also used by integration tests against a
// throwaway container.
func RunMigrations(db *gorm.DB) error {
	if err := applyPreMigrationPatches(db); err != nil {
		return fmt.Errorf("pre-migration patches: %w", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Terminal{},
		&model.CashRegisterSession{},
		&model.CashMovement{},
		&model.TreasuryRemittance{},
		&model.Product{},
		&model.InventoryBatch{},
		&model.StockMovement{},
		&model.Quote{},
		&model.QuoteItem{},
		&model.Sale{},
		&model.SaleItem{},
		&model.SalePayment{},
		&model.AuditLog{},
		&model.OutboxEvent{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applyPreMigrationPatches creates objects the tables reference by default value.
func applyPreMigrationPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"pgcrypto for gen_random_uuid", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
		{"quote code sequence", `CREATE SEQUENCE IF NOT EXISTS quotes_code_seq`},
		{"sale ticket sequence", `CREATE SEQUENCE IF NOT EXISTS sales_ticket_number_seq`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("pre-patch %q: %w", p.descr, err)
		}
	}
	return nil
}

// applySchemaPatches runs idempotent DDL that backs the engine invariants at the
// database level. Each statement is guarded so re-running on an already-patched
// DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// at most one OPEN session per terminal
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_open_terminal
		    ON cash_register_sessions (terminal_id) WHERE status = 'OPEN'`,
		// at most one OPEN session per user, system-wide
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_open_user
		    ON cash_register_sessions (user_id) WHERE status = 'OPEN'`,
		// stock can never go negative
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_inventory_batches_quantity_real') THEN
		    ALTER TABLE inventory_batches
		      ADD CONSTRAINT chk_inventory_batches_quantity_real CHECK (quantity_real >= 0);
		  END IF;
		END $$`,
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_terminals_occupant') THEN
		    ALTER TABLE terminals
		      ADD CONSTRAINT chk_terminals_occupant
		      CHECK ((status = 'OPEN') = (current_cashier_id IS NOT NULL));
		  END IF;
		END $$`,
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_quotes_total') THEN
		    ALTER TABLE quotes
		      ADD CONSTRAINT chk_quotes_total CHECK (total = subtotal - discount);
		  END IF;
		END $$`,
		// partial index for the expiry sweep
		`CREATE INDEX IF NOT EXISTS idx_quotes_pending_valid_until
		    ON quotes (valid_until) WHERE status = 'PENDING'`,
		// partial index for the outbox relay poll
		`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		    ON outbox_events (next_attempt_at) WHERE status = 'pending'`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
