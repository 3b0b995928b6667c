package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"catalog_ingest/internal/catalog/models"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}

func newMockRepository(t *testing.T) (*ProductRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewProductRepository(db, zap.NewNop())
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func testProduct() *models.Product {
	return &models.Product{
		ProductID:   "10005",
		Name:        "Leche entera Hacendado",
		Brand:       "Hacendado",
		Category:    "Huevos, leche y mantequilla",
		Price:       0.97,
		UnitPrice:   0.97,
		UnitMeasure: "L",
		IsAvailable: true,
		URL:         "https://tienda.mercadona.es/product/10005",
	}
}

func TestUpsertInsertsNewProduct(t *testing.T) {
	repo, mock := newMockRepository(t)
	p := testProduct()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT scrape_date FROM products").WithArgs("10005").
		WillReturnRows(sqlmock.NewRows([]string{"scrape_date"}))
	mock.ExpectExec("INSERT INTO products").
		WithArgs("10005", nil, p.Name, p.Brand, p.Category, "", p.Price, p.UnitPrice, "L",
			"", "", "", "", "", "", true, p.URL, timeArg(fixedNow)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	outcome, err := repo.Upsert(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Errorf("expected inserted, got %v", outcome)
	}
	if !p.ScrapeDate.IsZero() || p.LastUpdated != nil {
		t.Errorf("upsert must not mutate the caller's product")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertUpdatesExistingProduct(t *testing.T) {
	repo, mock := newMockRepository(t)
	p := testProduct()
	p.EAN = "8480000100057"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT scrape_date FROM products").WithArgs("10005").
		WillReturnRows(sqlmock.NewRows([]string{"scrape_date"}).AddRow(fixedNow.Add(-24 * time.Hour)))
	mock.ExpectExec("UPDATE products SET").
		WithArgs("10005", "8480000100057", p.Name, p.Brand, p.Category, "", p.Price, p.UnitPrice, "L",
			"", "", "", "", "", "", true, p.URL, timeArg(fixedNow)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.Upsert(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("expected updated, got %v", outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertLosesInsertRace(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT scrape_date FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"scrape_date"}))
	mock.ExpectExec("(?s)INSERT INTO products.*ON CONFLICT \\(product_id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE products SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.Upsert(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Errorf("the second writer must update, got %v", outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT scrape_date FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"scrape_date"}).AddRow(fixedNow))
	mock.ExpectExec("UPDATE products SET").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Upsert(context.Background(), testProduct())
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.ProductID != "10005" || se.Op != "upsert" {
		t.Errorf("unexpected error %+v", se)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertRejectsInvalidProduct(t *testing.T) {
	repo, mock := newMockRepository(t)

	p := testProduct()
	p.Name = "  "
	if _, err := repo.Upsert(context.Background(), p); err == nil {
		t.Fatal("expected error for a product without a name")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no statement may be issued: %v", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("INSERT INTO products").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Insert(context.Background(), testProduct())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE products SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), testProduct())
	if !errors.Is(err, ErrNotStored) {
		t.Fatalf("expected ErrNotStored, got %v", err)
	}
}

func productRow() []driver.Value {
	updated := fixedNow
	return []driver.Value{
		"10005", nil, "Leche entera Hacendado", "Hacendado", "Huevos, leche y mantequilla", nil,
		0.97, 0.97, "L", nil, nil, nil, nil, nil, nil, true,
		"https://tienda.mercadona.es/product/10005", fixedNow.Add(-time.Hour), updated,
	}
}

var rowColumns = []string{
	"product_id", "ean", "name", "brand", "category", "subcategory", "price", "unit_price",
	"unit_measure", "description", "ingredients", "allergens", "nutritional_info", "image_url",
	"thumbnail_url", "is_available", "url", "scrape_date", "last_updated",
}

func TestFindByID(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT product_id, ean, name").WithArgs("10005").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(productRow()...))

	p, err := repo.FindByID(context.Background(), "10005")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Name != "Leche entera Hacendado" || p.EAN != "" || p.Subcategory != "" {
		t.Fatalf("unexpected product %+v", p)
	}
	if p.LastUpdated == nil || !p.LastUpdated.Equal(fixedNow) {
		t.Errorf("unexpected last_updated %v", p.LastUpdated)
	}
	if !p.ScrapeDate.Before(*p.LastUpdated) {
		t.Errorf("scrape_date should precede last_updated")
	}
}

func TestFindByIDMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT product_id, ean, name").WithArgs("404").
		WillReturnRows(sqlmock.NewRows(rowColumns))

	p, err := repo.FindByID(context.Background(), "404")
	if err != nil || p != nil {
		t.Fatalf("expected nil, nil; got %v, %v", p, err)
	}
}

func TestCountAndSample(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("ORDER BY scrape_date DESC").WithArgs(5).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(productRow()...))

	n, err := repo.Count(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("unexpected count %d, %v", n, err)
	}
	sample, err := repo.Sample(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sample) != 1 || sample[0].ProductID != "10005" {
		t.Errorf("unexpected sample %+v", sample)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestWritesRejectNilProduct(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()

	if _, err := repo.Upsert(ctx, nil); err == nil {
		t.Error("Upsert: expected error for nil product")
	}
	if err := repo.Insert(ctx, nil); err == nil {
		t.Error("Insert: expected error for nil product")
	}
	var se *StoreError
	if err := repo.Update(ctx, nil); !errors.As(err, &se) || se.Op != "update" {
		t.Errorf("Update: expected StoreError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no statement may be issued: %v", err)
	}
}
