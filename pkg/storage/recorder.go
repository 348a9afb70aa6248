package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/auth"
)

// saveTimeout bounds the background write so a slow database cannot pile up
// goroutines forever.
const saveTimeout = 5 * time.Second

// Recorder bridges the request path to a Store. Writes happen in the
// background; the chat response is never delayed by accounting.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder wraps a store for use on the request path.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordUsage builds a record from the request context and hands it to the
// store asynchronously. The caller's context may already be cancelled when
// the stream ends, so the write uses its own deadline.
func (r *Recorder) RecordUsage(ctx context.Context, modelID string, usage api.Usage) {
	subject := "anonymous"
	if id := auth.IdentityFromContext(ctx); id != nil {
		subject = id.Subject
	}

	rec := &UsageRecord{
		Subject:          subject,
		ModelID:          modelID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CreatedAt:        time.Now(),
	}

	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.store.SaveUsage(saveCtx, rec); err != nil {
			r.logger.Warn("saving usage record",
				"model", rec.ModelID,
				"subject", rec.Subject,
				"error", err,
			)
		}
	}()
}
