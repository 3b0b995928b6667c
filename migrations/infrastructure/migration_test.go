package infrastructure

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"catalog_ingest/pkg/dbconnect/migration"
)

func TestProductsTableAppliedOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").WithArgs(ProductsTableMigration).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO migrations.migrations").WithArgs(ProductsTableMigration).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (&ProductsTable{}).UpMigration(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProductsTableSkippedWhenRecorded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").WithArgs(ProductsTableMigration).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := (&ProductsTable{}).UpMigration(db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplyStopsOnFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS migrations").WillReturnError(errors.New("permission denied"))

	err = migration.Apply(db, &MigrationsRegistry{}, &ProductsTable{}, &ProductsEAN{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
