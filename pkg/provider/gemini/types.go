package gemini

import "github.com/unillm/unillm/pkg/api"

// Outbound shapes. The API accepts snake_case field names here even though
// it replies in camelCase.
type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is one reply payload, whether a stream event or a full
// non-streaming response.
type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content      candidateContent `json:"content"`
	FinishReason *string          `json:"finishReason"`
}

type candidateContent struct {
	Parts []part `json:"parts"`
	Role  string `json:"role"`
}

type usageMetadata struct {
	PromptTokenCount int `json:"promptTokenCount"`
	TotalTokenCount  int `json:"totalTokenCount"`
}

// usage maps the reported counts onto the canonical counters. The API gives
// no separate completion count, so the total fills that slot and the total
// slot stays zero.
func (u usageMetadata) usage() api.Usage {
	return api.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.TotalTokenCount,
	}
}
