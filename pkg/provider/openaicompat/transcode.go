package openaicompat

import (
	"errors"
	"strings"
	"time"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/provider"
)

// State is the position of a stream transcoder in its reasoning lifecycle.
// Thinking models surface reasoning either as an inline marker embedded in
// the content channel or as a separate reasoning field; the two branches
// converge once visible content begins.
type State int

const (
	// StateInit is the start state, before any meaningful delta.
	StateInit State = iota
	// StateContentThinking means reasoning arrives inline in content,
	// bracketed by think markers.
	StateContentThinking
	// StateReasoningThinking means reasoning arrives in the side channel
	// while content stays empty.
	StateReasoningThinking
	// StateThinkFinished means visible content is flowing.
	StateThinkFinished
	// StateFinished means the final frame has been emitted.
	StateFinished
)

// ErrMissingReasoning reports a chunk with neither content nor reasoning
// while the transcoder is mid-reasoning. The stream cannot recover.
var ErrMissingReasoning = errors.New("reasoning stream chunk carries neither content nor reasoning")

// Transcoder converts a sequence of upstream stream events into canonical
// response frames, inserting synthetic think marker frames around reasoning
// text. All transition logic lives in Step; the SSE plumbing around it only
// parses lines and forwards events.
type Transcoder struct {
	state   State
	modelID string
	start   time.Time
	usage   api.Usage
}

func NewTranscoder(modelID string) *Transcoder {
	return &Transcoder{modelID: modelID, start: time.Now()}
}

func (t *Transcoder) State() State { return t.state }

// Step consumes one upstream event and returns the frames it produces, in
// emission order. Events after the final frame are ignored. An error is
// terminal; the caller must abort the stream.
func (t *Transcoder) Step(ev *Event) ([]*api.ChatResponse, error) {
	if t.state == StateFinished {
		return nil, nil
	}
	if ev.Usage != nil {
		t.usage = *ev.Usage
	}
	if len(ev.Choices) == 0 {
		return nil, provider.ErrEmptyChoices
	}
	delta := &ev.Choices[0].Delta

	switch t.state {
	case StateInit:
		return t.stepInit(delta), nil
	case StateContentThinking:
		return t.stepContentThinking(delta), nil
	case StateReasoningThinking:
		return t.stepReasoningThinking(delta)
	default:
		return []*api.ChatResponse{t.frame(delta.Role, delta.Content)}, nil
	}
}

func (t *Transcoder) stepInit(delta *Delta) []*api.ChatResponse {
	if strings.Contains(delta.Content, api.ThinkStartMarker) {
		t.state = StateContentThinking
		frames := []*api.ChatResponse{api.ThinkStartFrame(t.modelID)}
		if rest := strings.ReplaceAll(delta.Content, api.ThinkStartMarker, ""); rest != "" {
			frames = append(frames, t.frame(delta.Role, rest))
		}
		return frames
	}
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		t.state = StateReasoningThinking
		return []*api.ChatResponse{
			api.ThinkStartFrame(t.modelID),
			t.frame(delta.Role, *delta.ReasoningContent),
		}
	}
	if delta.Content != "" {
		t.state = StateThinkFinished
		return []*api.ChatResponse{t.frame(delta.Role, delta.Content)}
	}
	return nil
}

func (t *Transcoder) stepContentThinking(delta *Delta) []*api.ChatResponse {
	if !strings.Contains(delta.Content, api.ThinkEndMarker) {
		return []*api.ChatResponse{t.frame(delta.Role, delta.Content)}
	}
	t.state = StateThinkFinished
	frames := []*api.ChatResponse{api.ThinkEndFrame(t.modelID)}
	if rest := strings.ReplaceAll(delta.Content, api.ThinkEndMarker, ""); rest != "" {
		frames = append(frames, t.frame(delta.Role, rest))
	}
	return frames
}

func (t *Transcoder) stepReasoningThinking(delta *Delta) ([]*api.ChatResponse, error) {
	if delta.Content != "" {
		t.state = StateThinkFinished
		return []*api.ChatResponse{
			api.ThinkEndFrame(t.modelID),
			t.frame(delta.Role, delta.Content),
		}, nil
	}
	if delta.ReasoningContent == nil {
		return nil, ErrMissingReasoning
	}
	return []*api.ChatResponse{t.frame(delta.Role, *delta.ReasoningContent)}, nil
}

// Finish closes the stream after the end-of-stream sentinel, producing the
// single final frame with the last usage figures seen. Calling it again
// returns nil.
func (t *Transcoder) Finish() *api.ChatResponse {
	if t.state == StateFinished {
		return nil
	}
	t.state = StateFinished
	return api.FinalFrame(t.modelID, api.Message{Role: api.RoleAssistant}, t.usage, time.Since(t.start))
}

func (t *Transcoder) frame(role api.Role, content string) *api.ChatResponse {
	return api.NewFrame(t.modelID, api.Message{Role: role, Content: content})
}
