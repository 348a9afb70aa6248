package api

import (
	"encoding/json"
	"fmt"
)

// Version is the static semver reported by GET /api/version.
const Version = "0.1.0"

// Role identifies the author of a message. The set is closed: decoding an
// unknown role fails instead of silently defaulting.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// UnmarshalJSON enforces the closed role set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		*r = Role(s)
		return nil
	default:
		return fmt.Errorf("unknown role %q", s)
	}
}

// Message is one entry in a chat conversation.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its arguments.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool is a callable tool definition forwarded verbatim to upstreams that
// accept a tools field.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one callable function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the body of POST /api/chat. It is immutable once decoded.
//
// Options is an open mapping of provider-specific tuning parameters; the
// request adapters merge it verbatim into the outbound JSON body as
// additional top-level fields, last write wins.
type ChatRequest struct {
	Model     string         `json:"model"`
	Messages  []Message      `json:"messages"`
	Tools     []Tool         `json:"tools,omitempty"`
	Format    map[string]any `json:"format,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

// UnmarshalJSON applies request defaults: stream defaults to true and
// keep_alive to "5m" when omitted.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	aux := plain{Stream: true, KeepAlive: "5m"}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ChatRequest(aux)
	return nil
}

// DoneReason explains why a response finished.
type DoneReason string

const DoneReasonStop DoneReason = "stop"

// Usage holds token counters reported by an upstream provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is one canonical response frame. During streaming each frame
// is serialized on its own line; the final frame carries done=true together
// with the usage counters. Optional fields are omitted from the wire form
// when absent, never emitted as null.
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	DoneReason DoneReason `json:"done_reason,omitempty"`

	// TotalDuration is repurposed to carry the upstream total token count.
	TotalDuration *int `json:"total_duration,omitempty"`
	LoadDuration  *int `json:"load_duration,omitempty"`
	// PromptEvalCount carries the upstream prompt token count.
	PromptEvalCount    *int `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration *int `json:"prompt_eval_duration,omitempty"`
	// EvalCount carries the upstream completion token count.
	EvalCount *int `json:"eval_count,omitempty"`
	// EvalDuration carries the elapsed wall-clock milliseconds for the
	// whole streaming call.
	EvalDuration *int `json:"eval_duration,omitempty"`
}

// ModelEntry is one element of the GET /api/tags listing.
type ModelEntry struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// TagsResponse is the body of GET /api/tags.
type TagsResponse struct {
	Models []ModelEntry `json:"models"`
}

// VersionResponse is the body of GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}
