package infrastructure

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// MigrationsRegistry creates the table every other migration records itself in.
type MigrationsRegistry struct{}

func (m *MigrationsRegistry) UpMigration(db *sql.DB) error {
	query := `
        CREATE SCHEMA IF NOT EXISTS migrations;
        CREATE TABLE IF NOT EXISTS migrations.migrations (
            name VARCHAR(255) PRIMARY KEY,
            time TIMESTAMP WITH TIME ZONE NOT NULL
        );
    `
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations registry: %w", err)
	}
	return nil
}

// applyOnce runs query unless name is already recorded in the registry.
func applyOnce(db *sql.DB, log *zap.Logger, name, query string) error {
	if log == nil {
		log = zap.NewNop()
	}

	var migrationExists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM migrations.migrations WHERE name = $1)", name).Scan(&migrationExists)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if migrationExists {
		log.Debug("migration already applied", zap.String("migration", name))
		return nil
	}

	if _, err = db.Exec(query); err != nil {
		return fmt.Errorf("failed to apply '%s': %w", name, err)
	}

	_, err = db.Exec("INSERT INTO migrations.migrations (name, time) VALUES ($1, current_timestamp)", name)
	if err != nil {
		return fmt.Errorf("failed to mark '%s' migration as complete: %w", name, err)
	}

	log.Info("migration applied", zap.String("migration", name))
	return nil
}
