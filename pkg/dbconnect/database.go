package dbconnect

import "database/sql"

// Database owns one connection pool. Connect is idempotent; Close releases it.
type Database interface {
	Connect() (*sql.DB, error)
	Ping() error
	Close() error
}
