package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		name VARCHAR(50) NOT NULL,
		surname VARCHAR(50) NOT NULL DEFAULT '',
		address VARCHAR(200) NOT NULL,
		phone VARCHAR(13) NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		bottle_price NUMERIC(5,2) NOT NULL DEFAULT 2.50 CHECK (bottle_price >= 0),
		balance NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		dispatched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		canceled BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_before_cancel BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		unit_price NUMERIC(5,2) NOT NULL,
		total NUMERIC(10,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
		paid_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		amount NUMERIC(10,2) NOT NULL CHECK (amount >= 0),
		notes TEXT NOT NULL DEFAULT '',
		delivery_id UUID REFERENCES deliveries(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'payments' AND column_name = 'delivery_id') THEN
			ALTER TABLE payments ADD COLUMN delivery_id UUID REFERENCES deliveries(id) ON DELETE CASCADE;
		END IF;
	END
	$$;`,
	`ALTER TABLE deliveries ADD COLUMN IF NOT EXISTS delivered_before_cancel BOOLEAN NOT NULL DEFAULT FALSE;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_delivery_id ON payments (delivery_id) WHERE delivery_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_customer_id ON deliveries (customer_id, dispatched_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_dispatched_at ON deliveries (dispatched_at);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_pending ON deliveries (customer_id) WHERE NOT delivered AND NOT canceled;`,
	`CREATE INDEX IF NOT EXISTS idx_payments_customer_id ON payments (customer_id, paid_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_customers_active_name ON customers (active DESC, name, surname);`,
	`CREATE INDEX IF NOT EXISTS idx_customers_debt ON customers (balance DESC) WHERE balance > 0;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
