package postgres

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"catalog_ingest/config"
)

const (
	defaultMaxRetries   = 10
	defaultMaxOpenConns = 20
	defaultRetryDelay   = 5 * time.Second
)

type PostgresDatabase struct {
	config.DbConfig
	log *zap.Logger

	MaxRetries   int
	RetryDelay   time.Duration
	MaxOpenConns int

	db *sql.DB
	mu sync.Mutex // guards db
}

func NewPgConnector(dbConfig config.DbConfig, log *zap.Logger) *PostgresDatabase {
	return &PostgresDatabase{
		DbConfig:     dbConfig,
		log:          log.Named("postgres"),
		MaxRetries:   defaultMaxRetries,
		RetryDelay:   defaultRetryDelay,
		MaxOpenConns: defaultMaxOpenConns,
	}
}

func (pg *PostgresDatabase) Connect() (*sql.DB, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db != nil {
		return pg.db, nil
	}

	var err error
	conStr := pg.GetConnectionString()

	for i := 0; i < pg.MaxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open("postgres", conStr)
		if err != nil {
			pg.log.Warn("failed to open postgres",
				zap.Int("attempt", i+1), zap.Int("max_attempts", pg.MaxRetries), zap.Error(err))
			time.Sleep(pg.RetryDelay)
			continue
		}

		db.SetMaxOpenConns(pg.MaxOpenConns)

		if err = db.Ping(); err != nil {
			pg.log.Warn("failed to ping postgres",
				zap.Int("attempt", i+1), zap.Int("max_attempts", pg.MaxRetries), zap.Error(err))
			db.Close()
			time.Sleep(pg.RetryDelay)
			continue
		}

		pg.log.Info("connected to postgres")
		pg.db = db
		return pg.db, nil
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", pg.MaxRetries, err)
}

func (pg *PostgresDatabase) Ping() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db == nil {
		return fmt.Errorf("database connection is not established")
	}

	if err := pg.db.Ping(); err != nil {
		pg.db.Close()
		pg.db = nil
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (pg *PostgresDatabase) Close() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.db == nil {
		return nil
	}
	err := pg.db.Close()
	pg.db = nil
	return err
}
