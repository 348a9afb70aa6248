package provider

import (
	"context"
	"net/http"

	"github.com/unillm/unillm/pkg/api"
)

// Request carries everything an adapter needs to build an upstream call.
// ModelID is the public identifier echoed in every output frame; ModelName
// is the upstream-facing model string, which may differ.
type Request struct {
	ModelID   string
	ModelName string
	Messages  []api.Message
	Tools     []api.Tool
	Options   map[string]any
}

// Caller bundles the HTTP client and credential selected for one request.
// The client already routes through the forward proxy when the credential
// requires it.
type Caller struct {
	Client *http.Client
	Secret string
}

// Frame is one item on a streaming channel. Exactly one of Response or Err
// is set; a Frame with Err set is terminal and the channel closes after it.
type Frame struct {
	Response *api.ChatResponse
	Err      error
}

// Provider adapts one upstream backend to the canonical chat protocol.
type Provider interface {
	// Name reports the provider kind, for logging and metrics labels.
	Name() string

	// Complete performs a non-streaming chat call and returns the single
	// terminal response frame.
	Complete(ctx context.Context, caller Caller, req *Request) (*api.ChatResponse, error)

	// Stream performs a streaming chat call. The returned channel carries
	// canonical frames in order and is closed when the stream ends; a Frame
	// with Err set terminates the stream abnormally. An error return means
	// the upstream call itself failed before any frame was produced.
	Stream(ctx context.Context, caller Caller, req *Request) (<-chan Frame, error)
}
