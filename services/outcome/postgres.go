package outcome

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// PostgresStore persists outcome events into the routing_outcomes table.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a store on an existing connection pool.
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// OpenPostgresStore opens a connection pool from a DSN and verifies it.
func OpenPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("outcome database ping failed: %w", err)
	}
	return NewPostgresStore(db, logger), nil
}

// InitSchema creates the routing_outcomes table when it does not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS routing_outcomes (
			id UUID PRIMARY KEY,
			route_id UUID NOT NULL,
			provider_id TEXT NOT NULL,
			provider_kind TEXT NOT NULL,
			model TEXT,
			attempt INT NOT NULL,
			success BOOLEAN NOT NULL,
			error_category TEXT,
			prompt_tokens INT NOT NULL DEFAULT 0,
			completion_tokens INT NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			timestamp TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create routing_outcomes table: %w", err)
	}
	return nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, event Event) error {
	query := `
		INSERT INTO routing_outcomes (
			id, route_id, provider_id, provider_kind, model, attempt, success,
			error_category, prompt_tokens, completion_tokens, cost, latency_ms, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RouteID,
		event.ProviderID,
		string(event.ProviderKind),
		event.Model,
		event.Attempt,
		event.Success,
		string(event.ErrorCategory),
		event.PromptTokens,
		event.CompletionTokens,
		event.Cost,
		event.Latency.Milliseconds(),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome event: %w", err)
	}

	s.logger.Debug("outcome event inserted",
		zap.String("id", event.ID.String()),
		zap.String("provider_id", event.ProviderID),
		zap.Bool("success", event.Success))
	return nil
}

// Cleanup removes events older than the retention period, returning the
// number of rows deleted. Intended to run periodically.
func (s *PostgresStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	result, err := s.db.ExecContext(ctx, `DELETE FROM routing_outcomes WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outcome events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up old outcome events",
		zap.Int64("rows_deleted", rows),
		zap.Time("cutoff", cutoff))
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
