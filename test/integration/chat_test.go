package integration

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/unillm/unillm/pkg/api"
)

func TestChatStreamingPlainContent(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "hello"},
		},
		"stream": true,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}

	frames := readFrames(t, resp)
	// The upstream finish chunk carries an empty delta and is transcoded to
	// an empty content frame ahead of the terminal done frame.
	want := []string{"Hello", " from", " mock!", "", ""}
	if got := frameContents(frames); !reflect.DeepEqual(got, want) {
		t.Errorf("contents = %q, want %q", got, want)
	}

	final := frames[len(frames)-1]
	if !final.Done {
		t.Error("last frame should have done=true")
	}
	if final.DoneReason != api.DoneReasonStop {
		t.Errorf("done_reason = %q, want stop", final.DoneReason)
	}
	if final.Model != "local/test" {
		t.Errorf("final frame model = %q, want local/test", final.Model)
	}
	if final.PromptEvalCount == nil || *final.PromptEvalCount != 10 {
		t.Errorf("prompt_eval_count = %v, want 10", final.PromptEvalCount)
	}
	if final.EvalCount == nil || *final.EvalCount != 3 {
		t.Errorf("eval_count = %v, want 3", final.EvalCount)
	}
	for _, frame := range frames[:len(frames)-1] {
		if frame.Done {
			t.Error("intermediate frame has done=true")
		}
		if frame.PromptEvalCount != nil {
			t.Error("intermediate frame carries usage counters")
		}
	}
}

func TestChatStreamingReasoning(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "use reasoning please"},
		},
		"stream": true,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}

	frames := readFrames(t, resp)
	want := []string{"<think>", "Let me think", " about this.", "</think>", "The answer", " is 42.", "", ""}
	if got := frameContents(frames); !reflect.DeepEqual(got, want) {
		t.Errorf("contents = %q, want %q", got, want)
	}
}

func TestChatStreamingInlineThink(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "think hard"},
		},
		"stream": true,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}

	frames := readFrames(t, resp)
	want := []string{"<think>", "working it out", "</think>", "Done: 42.", "", ""}
	if got := frameContents(frames); !reflect.DeepEqual(got, want) {
		t.Errorf("contents = %q, want %q", got, want)
	}
}

// stream defaults to true when the field is omitted.
func TestChatStreamDefault(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "hello"},
		},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q, want application/x-ndjson", ct)
	}
	resp.Body.Close()
}

func TestChatNonStreaming(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "hello"},
		},
		"stream": false,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var frame api.ChatResponse
	decodeJSON(t, resp, &frame)

	if frame.Message.Content != "Hello from mock!" {
		t.Errorf("content = %q", frame.Message.Content)
	}
	if !frame.Done || frame.DoneReason != api.DoneReasonStop {
		t.Errorf("done = %v, done_reason = %q", frame.Done, frame.DoneReason)
	}
	if frame.PromptEvalCount == nil || *frame.PromptEvalCount != 10 {
		t.Errorf("prompt_eval_count = %v, want 10", frame.PromptEvalCount)
	}
	if frame.EvalCount == nil || *frame.EvalCount != 5 {
		t.Errorf("eval_count = %v, want 5", frame.EvalCount)
	}
}

// Usage records are written asynchronously after the final frame, so poll
// briefly for the aggregate to show up.
func TestChatRecordsUsage(t *testing.T) {
	resp := postChat(t, map[string]any{
		"model": "local/test",
		"messages": []map[string]any{
			{"role": "user", "content": "hello"},
		},
		"stream": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		totals, err := testEnv.Store.TotalsByModel(t.Context())
		if err != nil {
			t.Fatalf("TotalsByModel: %v", err)
		}
		if tot, ok := totals["local/test"]; ok && tot.Requests > 0 {
			if tot.PromptTokens < 10 {
				t.Errorf("prompt tokens = %d, want at least 10", tot.PromptTokens)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no usage record appeared within 2s")
}
