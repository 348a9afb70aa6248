// Package gemini adapts the Google Generative Language API to the canonical
// chat protocol. The backend differs from the flat chat-completions shape in
// every dimension that matters: messages are grouped into contents with a
// model/user role vocabulary, system prompts move to a dedicated
// system_instruction block, the credential travels as a URL query parameter,
// and streams terminate on a finishReason instead of a sentinel line.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/debug"
	"github.com/unillm/unillm/pkg/provider"
)

const baseURL = "https://generativelanguage.googleapis.com/v1beta/models"

const scanBufferSize = 1 << 20

// Client talks to the Generative Language API.
type Client struct {
	base string
}

// New returns the Google adapter.
func New() *Client {
	return &Client{base: baseURL}
}

// NewWithBase returns an adapter pointed at an alternate endpoint, for tests
// and self-hosted gateways.
func NewWithBase(base string) *Client {
	return &Client{base: base}
}

func (c *Client) Name() string { return "google" }

// endpoint builds the model-specific URL with the key as a query parameter.
func (c *Client) endpoint(modelName, secret string, stream bool) string {
	if stream {
		return fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s",
			c.base, modelName, url.QueryEscape(secret))
	}
	return fmt.Sprintf("%s/%s:generateContent?key=%s",
		c.base, modelName, url.QueryEscape(secret))
}

// buildBody regroups the flat message list into the grouped request shape.
// System messages merge in order into one system_instruction; assistant
// turns become role "model" and every other role becomes "user", preserving
// message order. Open options merge in last as top-level fields.
func buildBody(req *provider.Request) map[string]any {
	var contents []content
	var system *content
	for _, msg := range req.Messages {
		switch msg.Role {
		case api.RoleSystem:
			if system == nil {
				system = &content{}
			}
			system.Parts = append(system.Parts, part{Text: msg.Content})
		case api.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}

	body := map[string]any{"contents": contents}
	if system != nil {
		body["system_instruction"] = system
	}
	for k, v := range req.Options {
		body[k] = v
	}
	return body
}

func (c *Client) post(ctx context.Context, caller provider.Caller, req *provider.Request, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("encoding google request: %w", err)
	}
	debug.Log("providers", "upstream request", "name", c.Name(), "model", req.ModelName, "stream", stream)
	debug.Payload("providers", payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint(req.ModelName, caller.Secret, stream), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building google request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := caller.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling google: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &provider.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// Complete performs a non-streaming call, concatenating all parts of the
// first candidate into one message.
func (c *Client) Complete(ctx context.Context, caller provider.Caller, req *provider.Request) (*api.ChatResponse, error) {
	resp, err := c.post(ctx, caller, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("parsing google response: %w", err)
	}
	if len(gr.Candidates) == 0 {
		return nil, provider.ErrEmptyChoices
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	msg := api.Message{Role: api.RoleAssistant, Content: sb.String()}
	return api.FinalFrame(req.ModelID, msg, gr.UsageMetadata.usage(), 0), nil
}

// Stream performs a streaming call and transcodes the SSE stream.
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

// sendFrame delivers one frame unless the context is cancelled first. The
// channel buffer is finite, so a bare send after the consumer is gone would
// block forever.
func sendFrame(ctx context.Context, ch chan<- provider.Frame, frame provider.Frame) bool {
	select {
	case ch <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) readStream(ctx context.Context, body io.Reader, modelID string, ch chan<- provider.Frame) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	tr := NewTranscoder(modelID)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var ev generateResponse
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			sendFrame(ctx, ch, provider.Frame{Err: fmt.Errorf("parsing google stream event: %w", err)})
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
		if tr.Finished() {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		sendFrame(ctx, ch, provider.Frame{Err: fmt.Errorf("reading google stream: %w", err)})
	}
}
