package infrastructure

import (
	"database/sql"

	"go.uber.org/zap"
)

const (
	ProductsTableMigration = "public.products"
	ProductsEANIndex       = "public.products.ean_idx"
)

type ProductsTable struct {
	Log *zap.Logger
}

func (m *ProductsTable) UpMigration(db *sql.DB) error {
	return applyOnce(db, m.Log, ProductsTableMigration, `
		CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		product_id VARCHAR(50) NOT NULL UNIQUE,
		ean VARCHAR(32),
		name VARCHAR(255) NOT NULL,
		brand VARCHAR(100),
		category VARCHAR(100),
		subcategory VARCHAR(100),
		price DOUBLE PRECISION NOT NULL DEFAULT 0,
		unit_price DOUBLE PRECISION DEFAULT 0,
		unit_measure VARCHAR(20),
		description TEXT,
		ingredients TEXT,
		allergens TEXT,
		nutritional_info TEXT,
		image_url VARCHAR(500),
		thumbnail_url VARCHAR(500),
		is_available BOOLEAN DEFAULT TRUE,
		url VARCHAR(500),
		scrape_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
		last_updated TIMESTAMP WITH TIME ZONE
		);
		`)
}

// ProductsEAN indexes ean for lookups. Several products may share an ean.
type ProductsEAN struct {
	Log *zap.Logger
}

func (m *ProductsEAN) UpMigration(db *sql.DB) error {
	return applyOnce(db, m.Log, ProductsEANIndex, `CREATE INDEX IF NOT EXISTS products_ean_idx ON products(ean);`)
}
