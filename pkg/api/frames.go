package api

import "time"

// ThinkStartMarker and ThinkEndMarker are the literal contents of the
// synthetic frames bracketing reasoning output.
const (
	ThinkStartMarker = "<think>"
	ThinkEndMarker   = "</think>"
)

// now returns the frame timestamp. Frames carry the gateway's construction
// time at nanosecond precision, not upstream time.
func now() string {
	return time.Now().Format(time.RFC3339Nano)
}

// NewFrame builds an intermediate content frame for the given model.
func NewFrame(model string, msg Message) *ChatResponse {
	return &ChatResponse{
		Model:     model,
		CreatedAt: now(),
		Message:   msg,
	}
}

// ThinkStartFrame builds the synthetic frame opening a thinking section.
func ThinkStartFrame(model string) *ChatResponse {
	return NewFrame(model, Message{Role: RoleAssistant, Content: ThinkStartMarker})
}

// ThinkEndFrame builds the synthetic frame closing a thinking section.
func ThinkEndFrame(model string) *ChatResponse {
	return NewFrame(model, Message{Role: RoleAssistant, Content: ThinkEndMarker})
}

// WithUsage attaches upstream token counters to a frame.
func (f *ChatResponse) WithUsage(u Usage) *ChatResponse {
	f.TotalDuration = ptr(u.TotalTokens)
	f.PromptEvalCount = ptr(u.PromptTokens)
	f.EvalCount = ptr(u.CompletionTokens)
	return f
}

// FinalFrame builds the terminal frame of a response: done=true, done_reason
// set, every counter present (zero when the upstream reported none), and the
// elapsed duration of the call.
func FinalFrame(model string, msg Message, u Usage, elapsed time.Duration) *ChatResponse {
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	f := NewFrame(model, msg)
	f.Done = true
	f.DoneReason = DoneReasonStop
	f.TotalDuration = ptr(0)
	f.LoadDuration = ptr(0)
	f.PromptEvalCount = ptr(0)
	f.PromptEvalDuration = ptr(0)
	f.EvalCount = ptr(0)
	f.EvalDuration = ptr(int(elapsed.Milliseconds()))
	f.WithUsage(u)
	return f
}

func ptr(n int) *int {
	return &n
}
