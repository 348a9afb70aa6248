// Package openaicompat adapts chat-completions backends that speak the flat
// OpenAI wire shape: a messages array, SSE streaming with data-prefixed JSON
// chunks, and a [DONE] sentinel. Several hosted providers share this shape
// and differ only in endpoint URL, so one adapter covers them all.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/debug"
	"github.com/unillm/unillm/pkg/provider"
)

// scanBufferSize bounds a single SSE line. Reasoning models can pack long
// deltas into one event, so this is well above the bufio default.
const scanBufferSize = 1 << 20

// Client talks to one OpenAI-compatible backend endpoint.
type Client struct {
	name string
	url  string
}

// New returns an adapter for the backend named name at the given
// chat-completions URL.
func New(name, url string) *Client {
	return &Client{name: name, url: url}
}

func (c *Client) Name() string { return c.name }

// buildBody assembles the outbound request body. Open options are merged in
// last, so a caller-supplied option overrides any field of the same name.
func buildBody(req *provider.Request, stream bool) map[string]any {
	body := map[string]any{
		"model":    req.ModelName,
		"messages": req.Messages,
		"stream":   stream,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	for k, v := range req.Options {
		body[k] = v
	}
	return body
}

func (c *Client) post(ctx context.Context, caller provider.Caller, req *provider.Request, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(buildBody(req, stream))
	if err != nil {
		return nil, fmt.Errorf("encoding request for %s: %w", c.name, err)
	}
	debug.Log("providers", "upstream request", "name", c.name, "url", c.url, "stream", stream)
	debug.Payload("providers", payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+caller.Secret)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := caller.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &provider.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// Complete performs a non-streaming chat call.
func (c *Client) Complete(ctx context.Context, caller provider.Caller, req *provider.Request) (*api.ChatResponse, error) {
	resp, err := c.post(ctx, caller, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseComplete(req.ModelID, resp.Body)
}

// Stream performs a streaming chat call and transcodes the SSE stream into
// canonical frames on the returned channel.
func (c *Client) Stream(ctx context.Context, caller provider.Caller, req *provider.Request) (<-chan provider.Frame, error) {
	resp, err := c.post(ctx, caller, req, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Frame, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		c.readStream(ctx, resp.Body, req.ModelID, ch)
	}()
	return ch, nil
}

// sendFrame delivers one frame unless the context is cancelled first.
// Every send in readStream goes through here: the channel buffer is finite,
// so a bare send after the consumer is gone would block forever.
func sendFrame(ctx context.Context, ch chan<- provider.Frame, frame provider.Frame) bool {
	select {
	case ch <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream drives the transcoder over the SSE body. The scanner carries
// partial lines across chunk boundaries, so an event split mid-read is
// reassembled before parsing. A malformed event or an event without choices
// aborts the stream.
func (c *Client) readStream(ctx context.Context, body io.Reader, modelID string, ch chan<- provider.Frame) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	tr := NewTranscoder(modelID)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// Lines without the data prefix are SSE keep-alives or comments.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			if frame := tr.Finish(); frame != nil {
				sendFrame(ctx, ch, provider.Frame{Response: frame})
			}
			return
		}

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			sendFrame(ctx, ch, provider.Frame{Err: fmt.Errorf("parsing %s stream event: %w", c.name, err)})
			return
		}
		frames, err := tr.Step(&ev)
		if err != nil {
			sendFrame(ctx, ch, provider.Frame{Err: err})
			return
		}
		for _, frame := range frames {
			if !sendFrame(ctx, ch, provider.Frame{Response: frame}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		sendFrame(ctx, ch, provider.Frame{Err: fmt.Errorf("reading %s stream: %w", c.name, err)})
		return
	}

	// Upstream closed without the sentinel. Finish anyway so the client
	// still receives a terminal frame.
	if frame := tr.Finish(); frame != nil {
		sendFrame(ctx, ch, provider.Frame{Response: frame})
	}
}
