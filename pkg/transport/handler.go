package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/debug"
	"github.com/unillm/unillm/pkg/observability"
	"github.com/unillm/unillm/pkg/provider"
	"github.com/unillm/unillm/pkg/provider/catalog"
	"github.com/unillm/unillm/pkg/registry"
)

// UsageRecorder receives token counters after a completed chat request.
// Implementations must not block the request path.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, modelID string, usage api.Usage)
}

// Handler serves the gateway API surface.
type Handler struct {
	dispatcher *registry.Dispatcher
	recorder   UsageRecorder
	logger     *slog.Logger
}

// NewHandler builds the API handler. recorder may be nil when usage
// accounting is disabled.
func NewHandler(dispatcher *registry.Dispatcher, recorder UsageRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: dispatcher, recorder: recorder, logger: logger}
}

// Routes registers the API endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", h.handleTags)
	mux.HandleFunc("GET /api/version", h.handleVersion)
	mux.HandleFunc("POST /api/chat", h.handleChat)
	return mux
}

func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.TagsResponse{Models: h.dispatcher.Registry().Models()})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.VersionResponse{Version: api.Version})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, api.NewInvalidRequestError("", "invalid request body: "+err.Error()))
		return
	}
	if apiErr := api.ValidateChatRequest(&req); apiErr != nil {
		WriteError(w, apiErr)
		return
	}

	sel, err := h.dispatcher.Dispatch(req.Model)
	if err != nil {
		WriteError(w, APIErrorFrom(err))
		return
	}
	adapter, err := catalog.ForRef(sel.Credential.Provider)
	if err != nil {
		WriteError(w, APIErrorFrom(err))
		return
	}
	debug.Log("transport", "dispatch",
		"model", req.Model, "upstream_model", sel.ModelName,
		"provider", adapter.Name(), "stream", req.Stream,
	)

	preq := &provider.Request{
		ModelID:   req.Model,
		ModelName: sel.ModelName,
		Messages:  req.Messages,
		Tools:     req.Tools,
		Options:   req.Options,
	}
	caller := provider.Caller{Client: sel.Client, Secret: sel.Credential.Secret}

	if req.Stream {
		h.chatStream(w, r, adapter, caller, preq)
		return
	}
	h.chatComplete(w, r, adapter, caller, preq)
}

func (h *Handler) chatComplete(w http.ResponseWriter, r *http.Request, adapter provider.Provider, caller provider.Caller, preq *provider.Request) {
	start := time.Now()
	resp, err := adapter.Complete(r.Context(), caller, preq)
	observability.ObserveProviderRequest(adapter.Name(), preq.ModelID, outcomeLabel(err), time.Since(start))
	if err != nil {
		h.logger.Error("chat request failed",
			"model", preq.ModelID,
			"provider", adapter.Name(),
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		WriteError(w, APIErrorFrom(err))
		return
	}
	h.recordUsage(r.Context(), preq.ModelID, resp)
	observability.AddTokens(adapter.Name(), preq.ModelID, counterOrZero(resp.PromptEvalCount), counterOrZero(resp.EvalCount))
	writeJSON(w, resp)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func counterOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request, adapter provider.Provider, caller provider.Caller, preq *provider.Request) {
	start := time.Now()
	ch, err := adapter.Stream(r.Context(), caller, preq)
	if err != nil {
		observability.ObserveProviderRequest(adapter.Name(), preq.ModelID, "error", time.Since(start))
		h.logger.Error("chat stream failed to start",
			"model", preq.ModelID,
			"provider", adapter.Name(),
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		WriteError(w, APIErrorFrom(err))
		return
	}

	out := newNDJSONWriter(w)
	for frame := range ch {
		if frame.Err != nil {
			observability.ObserveProviderRequest(adapter.Name(), preq.ModelID, "error", time.Since(start))
			h.logger.Error("chat stream aborted",
				"model", preq.ModelID,
				"provider", adapter.Name(),
				"error", frame.Err,
				"request_id", RequestIDFromContext(r.Context()),
			)
			if !out.Started() {
				WriteError(w, APIErrorFrom(frame.Err))
			}
			// Headers are committed; closing mid-body is the only way to
			// signal failure to the client.
			return
		}
		if frame.Response.Done {
			h.recordUsage(r.Context(), preq.ModelID, frame.Response)
			observability.AddTokens(adapter.Name(), preq.ModelID,
				counterOrZero(frame.Response.PromptEvalCount), counterOrZero(frame.Response.EvalCount))
		}
		if err := out.WriteFrame(frame.Response); err != nil {
			h.logger.Warn("client disconnected mid-stream",
				"model", preq.ModelID,
				"error", err,
				"request_id", RequestIDFromContext(r.Context()),
			)
			return
		}
	}
	observability.ObserveProviderRequest(adapter.Name(), preq.ModelID, "ok", time.Since(start))
}

// recordUsage reads the counters back out of a terminal frame and hands them
// to the recorder.
func (h *Handler) recordUsage(ctx context.Context, modelID string, frame *api.ChatResponse) {
	if h.recorder == nil || frame == nil || !frame.Done {
		return
	}
	var usage api.Usage
	if frame.PromptEvalCount != nil {
		usage.PromptTokens = *frame.PromptEvalCount
	}
	if frame.EvalCount != nil {
		usage.CompletionTokens = *frame.EvalCount
	}
	if frame.TotalDuration != nil {
		usage.TotalTokens = *frame.TotalDuration
	}
	h.recorder.RecordUsage(ctx, modelID, usage)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
