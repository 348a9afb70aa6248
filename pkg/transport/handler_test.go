package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/registry"
)

// fakeRecorder captures usage hand-offs.
type fakeRecorder struct {
	mu      sync.Mutex
	records []api.Usage
}

func (f *fakeRecorder) RecordUsage(_ context.Context, _ string, usage api.Usage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, usage)
}

// newTestHandler wires a handler whose only model points at upstreamURL via
// the custom provider kind.
func newTestHandler(t *testing.T, upstreamURL string, rec UsageRecorder) *Handler {
	t.Helper()
	reg := registry.New(config.RegistryConfig{
		APIKeys: map[string]config.KeyPoolConfig{
			"local": {
				APIKey:   config.KeyList{"sk-local"},
				Provider: config.ProviderRef{Kind: config.ProviderCustom, CustomURL: upstreamURL},
			},
		},
		Models: map[string]config.ModelConfig{
			"local/test": {Name: "test-upstream", APIKeyID: "local"},
		},
	})
	d, err := registry.NewDispatcher(reg, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewHandler(d, rec, nil)
}

func sseUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("upstream body: %v", err)
		}
		if body["model"] != "test-upstream" {
			t.Errorf("upstream model = %v", body["model"])
		}
		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte(`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n"))
			w.Write([]byte(`data: {"choices":[{"delta":{"content":"lo"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}` + "\n\n"))
			w.Write([]byte("data: [DONE]\n\n"))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
}

func TestChatStreaming(t *testing.T) {
	upstream := sseUpstream(t)
	defer upstream.Close()

	rec := &fakeRecorder{}
	h := newTestHandler(t, upstream.URL, rec)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"model":"local/test","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", got)
	}

	var frames []api.ChatResponse
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var f api.ChatResponse
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			t.Fatalf("frame %q: %v", scanner.Text(), err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Message.Content != "Hel" || frames[1].Message.Content != "lo" {
		t.Errorf("contents = %q, %q", frames[0].Message.Content, frames[1].Message.Content)
	}
	final := frames[2]
	if !final.Done || final.DoneReason != api.DoneReasonStop {
		t.Errorf("final done=%v reason=%q", final.Done, final.DoneReason)
	}
	for _, f := range frames {
		if f.Model != "local/test" {
			t.Errorf("frame model = %q", f.Model)
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 1 || rec.records[0].CompletionTokens != 2 {
		t.Errorf("recorded usage = %+v", rec.records)
	}
}

func TestChatNonStreaming(t *testing.T) {
	upstream := sseUpstream(t)
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"model":"local/test","messages":[{"role":"user","content":"hi"}],"stream":false}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var out api.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Message.Content != "Hello" || !out.Done {
		t.Errorf("response = %+v", out)
	}
	if out.EvalCount == nil || *out.EvalCount != 2 {
		t.Errorf("eval_count = %v", out.EvalCount)
	}
}

func TestChatUnknownModel(t *testing.T) {
	h := newTestHandler(t, "http://unused.invalid", nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"model":"nope","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatInvalidBody(t *testing.T) {
	h := newTestHandler(t, "http://unused.invalid", nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	for name, body := range map[string]string{
		"malformed json": `{not json`,
		"missing model":  `{"messages":[{"role":"user","content":"hi"}]}`,
		"no messages":    `{"model":"local/test"}`,
		"unknown role":   `{"model":"local/test","messages":[{"role":"oracle","content":"x"}]}`,
	} {
		resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend on fire", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"model":"local/test","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestTags(t *testing.T) {
	h := newTestHandler(t, "http://unused.invalid", nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tags")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var tags api.TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, m := range tags.Models {
		names[m.Name] = true
	}
	if !names["local/test"] || !names["local/test:latest"] {
		t.Errorf("models = %+v", tags.Models)
	}
}

func TestVersion(t *testing.T) {
	h := newTestHandler(t, "http://unused.invalid", nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/version")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var v api.VersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Version != api.Version {
		t.Errorf("version = %q, want %q", v.Version, api.Version)
	}
}
