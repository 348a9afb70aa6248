package api

import "strconv"

// ValidateChatRequest checks structural requirements on an inbound chat
// request. Role values are already enforced during decoding; this covers
// what the JSON schema alone cannot express.
func ValidateChatRequest(req *ChatRequest) *APIError {
	if req.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must not be empty")
	}
	for i, msg := range req.Messages {
		if msg.Role == "" {
			return NewInvalidRequestError("messages", "message role is required")
		}
		if msg.Content == "" && len(msg.ToolCalls) == 0 && len(msg.Images) == 0 {
			// Empty assistant messages show up in some clients' histories;
			// only reject fully empty non-assistant messages.
			if msg.Role != RoleAssistant {
				return NewInvalidRequestError("messages", "message content is empty at index "+strconv.Itoa(i))
			}
		}
	}
	for _, tool := range req.Tools {
		if tool.Function.Name == "" {
			return NewInvalidRequestError("tools", "tool function name is required")
		}
	}
	return nil
}
