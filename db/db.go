// Package db provides the PostgreSQL-backed implementations of the
// mailroom's Directory and MessageStore collaborators.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leolive/onebody/config"
	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/pkg/metrics"
)

//go:embed schema.sql
var schema string

type Database struct {
	WritePool *pgxpool.Pool
	ReadPool  *pgxpool.Pool
}

// NewDatabase initializes the connection pool and applies the embedded
// schema. Read and write share one pool; the split fields keep call
// sites explicit about intent.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	sslMode := "disable"
	if cfg.TLSMode {
		sslMode = "require"
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslMode)

	logger.Info("connecting to database", "host", cfg.Host, "port", cfg.Port, "name", cfg.Name, "sslmode", sslMode)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.LogQueries {
		poolConfig.ConnConfig.Tracer = &queryTracer{}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	db := &Database{WritePool: pool, ReadPool: pool}
	if err := db.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) migrate(ctx context.Context) error {
	if _, err := db.WritePool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.WritePool != nil {
		db.WritePool.Close()
	}
	if db.ReadPool != nil && db.ReadPool != db.WritePool {
		db.ReadPool.Close()
	}
}

// Ping verifies database connectivity, used by the health endpoint.
func (db *Database) Ping(ctx context.Context) error {
	return db.ReadPool.Ping(ctx)
}

// StartPoolMetrics starts a goroutine that periodically exports
// connection pool stats until ctx is done.
func (db *Database) StartPoolMetrics(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.WritePool.Stat()
				metrics.DBPoolTotalConns.WithLabelValues("write").Set(float64(stats.TotalConns()))
				if db.ReadPool != db.WritePool {
					stats = db.ReadPool.Stat()
					metrics.DBPoolTotalConns.WithLabelValues("read").Set(float64(stats.TotalConns()))
				}
			}
		}
	}()
}
