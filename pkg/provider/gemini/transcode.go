package gemini

import (
	"errors"
	"time"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/provider"
)

// ErrEmptyParts reports a candidate whose parts array is empty. The stream
// aborts rather than guessing at intent.
var ErrEmptyParts = errors.New("upstream candidate contains no parts")

// Transcoder converts generateContent stream events into canonical frames.
// The lifecycle has two states: chatting until an event carries a
// finishReason, at which point the event's text frame is followed by the
// final frame and everything after is ignored.
type Transcoder struct {
	modelID  string
	start    time.Time
	finished bool
}

func NewTranscoder(modelID string) *Transcoder {
	return &Transcoder{modelID: modelID, start: time.Now()}
}

func (t *Transcoder) Finished() bool { return t.finished }

// Step consumes one stream event and returns the frames it produces.
func (t *Transcoder) Step(ev *generateResponse) ([]*api.ChatResponse, error) {
	if t.finished {
		return nil, nil
	}
	if len(ev.Candidates) == 0 {
		return nil, provider.ErrEmptyChoices
	}
	cand := &ev.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		return nil, ErrEmptyParts
	}

	msg := api.Message{Role: api.RoleAssistant, Content: cand.Content.Parts[0].Text}
	frames := []*api.ChatResponse{api.NewFrame(t.modelID, msg)}

	if cand.FinishReason != nil {
		t.finished = true
		final := api.FinalFrame(t.modelID, api.Message{Role: api.RoleAssistant},
			ev.UsageMetadata.usage(), time.Since(t.start))
		frames = append(frames, final)
	}
	return frames, nil
}
