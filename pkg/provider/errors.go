package provider

import (
	"errors"
	"fmt"
)

// ErrEmptyChoices reports an upstream response whose choices array is empty.
// During streaming this is terminal; the stream aborts rather than waiting
// for a later event that may never come.
var ErrEmptyChoices = errors.New("upstream response contains no choices")

// UpstreamError is a non-2xx reply from a backend. The body is kept verbatim
// so the caller can surface the provider's own diagnostic.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}
