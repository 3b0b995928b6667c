package migration

import "database/sql"

type MigrationInterface interface {
	UpMigration(*sql.DB) error
}

// Apply runs migrations in order and stops at the first failure.
func Apply(db *sql.DB, migrations ...MigrationInterface) error {
	for _, m := range migrations {
		if err := m.UpMigration(db); err != nil {
			return err
		}
	}
	return nil
}
