package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/provider"
)

// ParseComplete decodes a non-streaming upstream response body into a single
// terminal frame. When the reply carries side-channel reasoning, the
// reasoning text is folded back into content between think markers so the
// output is shaped the same as a transcoded stream.
func ParseComplete(modelID string, body io.Reader) (*api.ChatResponse, error) {
	var ev Event
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("parsing upstream response: %w", err)
	}
	if len(ev.Choices) == 0 {
		return nil, provider.ErrEmptyChoices
	}
	delta := &ev.Choices[0].Delta

	content := delta.Content
	if delta.ReasoningContent != nil && *delta.ReasoningContent != "" {
		content = api.ThinkStartMarker + "\n" + *delta.ReasoningContent + api.ThinkEndMarker + "\n" + content
	}

	var usage api.Usage
	if ev.Usage != nil {
		usage = *ev.Usage
	}
	return api.FinalFrame(modelID, api.Message{Role: delta.Role, Content: content}, usage, 0), nil
}
