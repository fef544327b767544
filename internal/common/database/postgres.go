// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entitlement-service/internal/common/config"

	_ "github.com/lib/pq"
)

// Pinger is satisfied by every backing store checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresClient owns the pool backing the users and usage_ledgers tables.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a lib/pq pool. It does not dial; call Ping.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// NewPostgresFromDB wraps an existing handle, e.g. a sqlmock connection.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{DB: db}
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Stats reports pool usage for the readiness payload.
func (c *PostgresClient) Stats() map[string]interface{} {
	s := c.DB.Stats()
	return map[string]interface{}{
		"open":    s.OpenConnections,
		"inUse":   s.InUse,
		"idle":    s.Idle,
		"waitFor": s.WaitDuration.String(),
	}
}

// GetDB returns the underlying *sql.DB.
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
