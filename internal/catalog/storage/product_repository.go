package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalog_ingest/internal/catalog/models"
)

type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	}
	return "unknown"
}

const productColumns = `product_id, ean, name, brand, category, subcategory, price, unit_price,
	unit_measure, description, ingredients, allergens, nutritional_info, image_url,
	thumbnail_url, is_available, url, scrape_date, last_updated`

const insertProductQuery = `
	INSERT INTO products (
		product_id, ean, name, brand, category, subcategory, price, unit_price,
		unit_measure, description, ingredients, allergens, nutritional_info, image_url,
		thumbnail_url, is_available, url, scrape_date, last_updated
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9,
		$10, $11, $12, $13, $14, $15, $16, $17, $18, NULL
	)`

const updateProductQuery = `
	UPDATE products SET
		ean = $2, name = $3, brand = $4, category = $5, subcategory = $6,
		price = $7, unit_price = $8, unit_measure = $9, description = $10,
		ingredients = $11, allergens = $12, nutritional_info = $13, image_url = $14,
		thumbnail_url = $15, is_available = $16, url = $17, last_updated = $18
	WHERE product_id = $1`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type ProductRepository struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

func NewProductRepository(db *sql.DB, log *zap.Logger) *ProductRepository {
	log.Debug("created catalog product repository")
	return &ProductRepository{
		db:  db,
		log: log.Named("product_repository"),
		now: time.Now,
	}
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping products store: %w", err)
	}
	return nil
}

// FindByID returns nil, nil when no record carries productID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = $1`, productID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr("find", productID, err)
	}
	return p, nil
}

// Insert stores a new record with scrape_date set to now and no last_updated.
func (r *ProductRepository) Insert(ctx context.Context, p *models.Product) error {
	if err := checkProduct("insert", p); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, insertProductQuery, insertArgs(p, r.now().UTC())...)
	if err != nil {
		if isUniqueViolation(err) {
			return storeErr("insert", p.ProductID, ErrDuplicate)
		}
		return storeErr("insert", p.ProductID, err)
	}
	return nil
}

// Update overwrites every field of an existing record except scrape_date and
// sets last_updated to now.
func (r *ProductRepository) Update(ctx context.Context, p *models.Product) error {
	if err := checkProduct("update", p); err != nil {
		return err
	}
	return storeErr("update", p.ProductID, r.update(ctx, r.db, p, r.now().UTC()))
}

// Upsert makes the stored record for p.ProductID reflect p. The lookup and the
// write share one transaction so concurrent upserts of the same id serialize on
// the row lock and exactly one of them inserts.
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) (Outcome, error) {
	if err := checkProduct("upsert", p); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("upsert", p.ProductID, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	now := r.now().UTC()
	outcome, err := r.upsertTx(ctx, tx, p, now)
	if err != nil {
		return 0, storeErr("upsert", p.ProductID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("upsert", p.ProductID, fmt.Errorf("failed to commit: %w", err))
	}

	r.log.Debug("product stored", zap.String("product_id", p.ProductID), zap.Stringer("outcome", outcome))
	return outcome, nil
}

func (r *ProductRepository) upsertTx(ctx context.Context, tx *sql.Tx, p *models.Product, now time.Time) (Outcome, error) {
	var scraped time.Time
	err := tx.QueryRowContext(ctx,
		`SELECT scrape_date FROM products WHERE product_id = $1 FOR UPDATE`, p.ProductID).Scan(&scraped)
	switch {
	case err == nil:
		if err := r.update(ctx, tx, p, now); err != nil {
			return 0, err
		}
		return OutcomeUpdated, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("failed to look up product: %w", err)
	}

	// A missing row cannot be locked, so a concurrent insert may still win.
	res, err := tx.ExecContext(ctx, insertProductQuery+` ON CONFLICT (product_id) DO NOTHING`, insertArgs(p, now)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if err := r.update(ctx, tx, p, now); err != nil {
			return 0, err
		}
		return OutcomeUpdated, nil
	}
	return OutcomeInserted, nil
}

func (r *ProductRepository) update(ctx context.Context, ex execer, p *models.Product, now time.Time) error {
	res, err := ex.ExecContext(ctx, updateProductQuery,
		p.ProductID, nullString(p.EAN), p.Name, p.Brand, p.Category, p.Subcategory,
		p.Price, p.UnitPrice, p.UnitMeasure, p.Description,
		p.Ingredients, p.Allergens, p.NutritionalInfo, p.ImageURL,
		p.ThumbnailURL, p.IsAvailable, p.URL, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotStored
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// Sample returns up to n records, most recently scraped first.
func (r *ProductRepository) Sample(ctx context.Context, n int) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY scrape_date DESC, product_id LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to sample products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// checkProduct rejects nil and invalid records before any statement runs.
func checkProduct(op string, p *models.Product) error {
	if p == nil {
		return storeErr(op, "", errors.New("nil product"))
	}
	if !p.Valid() {
		return storeErr(op, p.ProductID, errors.New("invalid product"))
	}
	return nil
}

func insertArgs(p *models.Product, now time.Time) []any {
	return []any{
		p.ProductID, nullString(p.EAN), p.Name, p.Brand, p.Category, p.Subcategory,
		p.Price, p.UnitPrice, p.UnitMeasure, p.Description,
		p.Ingredients, p.Allergens, p.NutritionalInfo, p.ImageURL,
		p.ThumbnailURL, p.IsAvailable, p.URL, now,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*models.Product, error) {
	var (
		p                                                models.Product
		ean, brand, category, subcategory, measure       sql.NullString
		description, ingredients, allergens, nutritional sql.NullString
		image, thumbnail, url                            sql.NullString
		unitPrice                                        sql.NullFloat64
		available                                        sql.NullBool
		lastUpdated                                      sql.NullTime
	)
	err := s.Scan(
		&p.ProductID, &ean, &p.Name, &brand, &category, &subcategory, &p.Price, &unitPrice,
		&measure, &description, &ingredients, &allergens, &nutritional, &image,
		&thumbnail, &available, &url, &p.ScrapeDate, &lastUpdated,
	)
	if err != nil {
		return nil, err
	}

	p.EAN, p.Brand, p.Category, p.Subcategory = ean.String, brand.String, category.String, subcategory.String
	p.UnitMeasure, p.Description, p.Ingredients = measure.String, description.String, ingredients.String
	p.Allergens, p.NutritionalInfo = allergens.String, nutritional.String
	p.ImageURL, p.ThumbnailURL, p.URL = image.String, thumbnail.String, url.String
	p.UnitPrice = unitPrice.Float64
	p.IsAvailable = !available.Valid || available.Bool
	if lastUpdated.Valid {
		t := lastUpdated.Time
		p.LastUpdated = &t
	}
	return &p, nil
}

// nullString stores an empty identifier such as a missing EAN as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
