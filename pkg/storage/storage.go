package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store is closed")

// UsageRecord is one completed chat request's token accounting.
type UsageRecord struct {
	// Subject identifies the caller, "anonymous" when auth is disabled.
	Subject string

	// ModelID is the public model identifier the caller requested.
	ModelID string

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	CreatedAt time.Time
}

// Totals aggregates usage records.
type Totals struct {
	Requests         int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Store persists usage records.
type Store interface {
	// SaveUsage appends one record.
	SaveUsage(ctx context.Context, rec *UsageRecord) error

	// TotalsByModel aggregates all stored records per model.
	TotalsByModel(ctx context.Context) (map[string]Totals, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]UsageRecord, error)

	// Close releases the store's resources.
	Close()
}
