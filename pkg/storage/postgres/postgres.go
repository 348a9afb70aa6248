// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unillm/unillm/pkg/storage"
)

// Store is a PostgreSQL-backed usage store.
type Store struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveUsage persists a single usage record.
func (s *Store) SaveUsage(ctx context.Context, rec *storage.UsageRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			subject, model_id,
			prompt_tokens, completion_tokens, total_tokens,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`,
		rec.Subject, rec.ModelID,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}

	return nil
}

// TotalsByModel aggregates usage counters grouped by model ID.
func (s *Store) TotalsByModel(ctx context.Context) (map[string]storage.Totals, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT model_id,
		       COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0)
		FROM usage_records
		GROUP BY model_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]storage.Totals)
	for rows.Next() {
		var model string
		var t storage.Totals
		if err := rows.Scan(&model, &t.Requests, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens); err != nil {
			return nil, fmt.Errorf("scanning totals row: %w", err)
		}
		totals[model] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating totals: %w", err)
	}

	return totals, nil
}

// Recent returns the newest usage records, newest first, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]storage.UsageRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT subject, model_id,
		       prompt_tokens, completion_tokens, total_tokens,
		       created_at
		FROM usage_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()

	var records []storage.UsageRecord
	for rows.Next() {
		var rec storage.UsageRecord
		if err := rows.Scan(
			&rec.Subject, &rec.ModelID,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool. Subsequent calls are no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pool.Close()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}
