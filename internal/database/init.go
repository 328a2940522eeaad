package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/viaforteexpress/campaign-engine/config"
	"github.com/viaforteexpress/campaign-engine/internal/database/schema"
)

// Connect opens a connection pool to Postgres using the application config.
func Connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// InitializeSchema creates the tables and indexes if they do not exist.
// Statements are idempotent so this is safe to run at every startup.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	for _, definition := range schema.TableDefinitions {
		if _, err := db.ExecContext(ctx, definition); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
