package openaicompat

import (
	"encoding/json"

	"github.com/unillm/unillm/pkg/api"
)

// Delta is one message fragment from an upstream chunk. Backends disagree on
// nullability: content may be JSON null (treated as empty) and role may be
// omitted entirely (defaulted to assistant). Thinking models additionally
// carry reasoning text in a side channel next to content.
type Delta struct {
	Role             api.Role
	Content          string
	ReasoningContent *string
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	var aux struct {
		Role             *api.Role `json:"role"`
		Content          *string   `json:"content"`
		ReasoningContent *string   `json:"reasoning_content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Role = api.RoleAssistant
	if aux.Role != nil {
		d.Role = *aux.Role
	}
	d.Content = ""
	if aux.Content != nil {
		d.Content = *aux.Content
	}
	d.ReasoningContent = aux.ReasoningContent
	return nil
}

// Choice is one completion alternative. Streaming chunks name the fragment
// "delta" while non-streaming responses name the full message "message";
// both decode into the same Delta.
type Choice struct {
	Delta        Delta
	FinishReason *string
}

func (c *Choice) UnmarshalJSON(data []byte) error {
	var aux struct {
		Delta        *Delta  `json:"delta"`
		Message      *Delta  `json:"message"`
		FinishReason *string `json:"finish_reason"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.Delta != nil:
		c.Delta = *aux.Delta
	case aux.Message != nil:
		c.Delta = *aux.Message
	}
	c.FinishReason = aux.FinishReason
	return nil
}

// Event is one parsed upstream payload, either a stream chunk or a complete
// non-streaming response body.
type Event struct {
	Choices []Choice   `json:"choices"`
	Usage   *api.Usage `json:"usage"`
}
