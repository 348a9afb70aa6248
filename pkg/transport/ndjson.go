package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/unillm/unillm/pkg/api"
)

// ndjsonWriter streams newline-delimited JSON frames, flushing after each
// frame so clients see tokens as they arrive.
type ndjsonWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	return &ndjsonWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteFrame serializes one frame followed by a newline and flushes it.
// Headers are committed on the first frame.
func (n *ndjsonWriter) WriteFrame(frame *api.ChatResponse) error {
	if !n.started {
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := n.w.Write(data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := n.rc.Flush(); err != nil {
		return fmt.Errorf("flushing frame: %w", err)
	}
	return nil
}

// Started reports whether headers have been committed. Once true, errors can
// no longer change the response status.
func (n *ndjsonWriter) Started() bool { return n.started }
