// Command mock-upstream runs a deterministic upstream LLM server for manual
// testing. It speaks the Chat Completions SSE dialect on /v1/chat/completions
// and the Gemini streaming dialect on the generateContent paths, so a gateway
// configured with a custom provider pointing here exercises both transcoders
// without real credentials.
//
// The reply shape is selected by the last user message:
//
//	"reasoning" - reasoning_content side channel, then content
//	"think"     - inline <think> markers in the content stream
//	anything    - plain content tokens
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("POST /v1beta/models/{model...}", handleGemini)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Chat Completions dialect ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = "mock-model"
	}

	if req.Stream {
		streamChat(w, model, lastUserMessage(req.Messages))
		return
	}

	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": "Hello, nice day!",
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func streamChat(w http.ResponseWriter, model, prompt string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	type chunk struct {
		content   string
		reasoning string
	}

	var chunks []chunk
	switch {
	case strings.Contains(strings.ToLower(prompt), "reasoning"):
		chunks = []chunk{
			{reasoning: "Let me "},
			{reasoning: "think about this."},
			{content: "The answer "},
			{content: "is 42."},
		}
	case strings.Contains(strings.ToLower(prompt), "think"):
		chunks = []chunk{
			{content: "<think>working it out"},
			{content: "</think>Done: 42."},
		}
	default:
		chunks = []chunk{
			{content: "Hello"},
			{content: ", "},
			{content: "nice "},
			{content: "day!"},
		}
	}

	for _, c := range chunks {
		delta := map[string]any{"role": "assistant"}
		if c.reasoning != "" {
			delta["reasoning_content"] = c.reasoning
			delta["content"] = ""
		} else {
			delta["content"] = c.content
		}
		writeSSE(w, map[string]any{
			"id":     "chatcmpl-mock-stream",
			"object": "chat.completion.chunk",
			"model":  model,
			"choices": []any{
				map[string]any{"index": 0, "delta": delta, "finish_reason": nil},
			},
		})
		flusher.Flush()
	}

	writeSSE(w, map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{"index": 0, "delta": map[string]any{}, "finish_reason": "stop"},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": len(chunks),
			"total_tokens":      10 + len(chunks),
		},
	})
	flusher.Flush()

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// --- Gemini dialect ---

// handleGemini serves both {model}:generateContent and
// {model}:streamGenerateContent; the path wildcard swallows the action
// suffix, so the action is recovered from the raw path.
func handleGemini(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
		streamGemini(w)
		return
	}

	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": "Hello, nice day!"}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount": 10,
			"totalTokenCount":  15,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func streamGemini(w http.ResponseWriter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")

	tokens := []string{"Hello", ", nice ", "day!"}
	for i, token := range tokens {
		event := map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{map[string]any{"text": token}},
						"role":  "model",
					},
				},
			},
		}
		if i == len(tokens)-1 {
			event["candidates"].([]any)[0].(map[string]any)["finishReason"] = "STOP"
			event["usageMetadata"] = map[string]any{
				"promptTokenCount": 10,
				"totalTokenCount":  13,
			}
		}
		writeSSE(w, event)
		flusher.Flush()
	}
}
