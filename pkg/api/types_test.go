package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleUnmarshal_Known(t *testing.T) {
	for _, s := range []string{"system", "user", "assistant", "tool"} {
		var r Role
		if err := json.Unmarshal([]byte(`"`+s+`"`), &r); err != nil {
			t.Errorf("role %q: unexpected error: %v", s, err)
		}
		if string(r) != s {
			t.Errorf("role %q: got %q", s, r)
		}
	}
}

func TestRoleUnmarshal_UnknownFails(t *testing.T) {
	var r Role
	err := json.Unmarshal([]byte(`"moderator"`), &r)
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
	if !strings.Contains(err.Error(), "moderator") {
		t.Errorf("error should name the offending role: %v", err)
	}
}

func TestChatRequestDefaults(t *testing.T) {
	var req ChatRequest
	body := `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.Stream {
		t.Error("stream should default to true")
	}
	if req.KeepAlive != "5m" {
		t.Errorf("keep_alive default = %q, want 5m", req.KeepAlive)
	}
}

func TestChatRequestStreamExplicitFalse(t *testing.T) {
	var req ChatRequest
	body := `{"model":"m1","messages":[{"role":"user","content":"hi"}],"stream":false}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Stream {
		t.Error("explicit stream:false must be honored")
	}
}

func TestChatRequestRejectsUnknownMessageRole(t *testing.T) {
	var req ChatRequest
	body := `{"model":"m1","messages":[{"role":"robot","content":"hi"}]}`
	if err := json.Unmarshal([]byte(body), &req); err == nil {
		t.Fatal("expected unmarshal failure for unknown message role")
	}
}

func TestFrameJSON_OmitsAbsentFields(t *testing.T) {
	f := NewFrame("m1", Message{Role: RoleAssistant, Content: "Hel"})
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, absent := range []string{"done_reason", "eval_count", "prompt_eval_count", "total_duration", "images", "tool_calls"} {
		if strings.Contains(s, absent) {
			t.Errorf("intermediate frame must omit %q: %s", absent, s)
		}
	}
	if !strings.Contains(s, `"done":false`) {
		t.Errorf("intermediate frame must carry done:false: %s", s)
	}
}

func TestFinalFrame_CountersAndReason(t *testing.T) {
	u := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	f := FinalFrame("m1", Message{}, u, 1200*time.Millisecond)

	if !f.Done {
		t.Error("final frame must have done=true")
	}
	if f.DoneReason != DoneReasonStop {
		t.Errorf("done_reason = %q, want stop", f.DoneReason)
	}
	if f.Message.Role != RoleAssistant {
		t.Errorf("empty message must default to assistant role, got %q", f.Message.Role)
	}
	if got := *f.PromptEvalCount; got != 10 {
		t.Errorf("prompt_eval_count = %d, want 10", got)
	}
	if got := *f.EvalCount; got != 5 {
		t.Errorf("eval_count = %d, want 5", got)
	}
	if got := *f.TotalDuration; got != 15 {
		t.Errorf("total_duration = %d, want 15", got)
	}
	if got := *f.EvalDuration; got != 1200 {
		t.Errorf("eval_duration = %d, want 1200", got)
	}
	// Zero-valued counters are present, not omitted, on the final frame.
	data, _ := json.Marshal(f)
	if !strings.Contains(string(data), `"load_duration":0`) {
		t.Errorf("final frame must serialize zero counters: %s", data)
	}
}

func TestFinalFrame_ZeroUsage(t *testing.T) {
	f := FinalFrame("m1", Message{}, Usage{}, 0)
	for name, v := range map[string]*int{
		"total_duration":    f.TotalDuration,
		"prompt_eval_count": f.PromptEvalCount,
		"eval_count":        f.EvalCount,
	} {
		if v == nil || *v != 0 {
			t.Errorf("%s should be present and zero", name)
		}
	}
}

func TestThinkFrames(t *testing.T) {
	start := ThinkStartFrame("m1")
	end := ThinkEndFrame("m1")
	if start.Message.Content != "<think>" || start.Message.Role != RoleAssistant {
		t.Errorf("think start frame = %+v", start.Message)
	}
	if end.Message.Content != "</think>" || end.Message.Role != RoleAssistant {
		t.Errorf("think end frame = %+v", end.Message)
	}
	if start.Done || end.Done {
		t.Error("think marker frames must not be terminal")
	}
	if start.EvalCount != nil || end.PromptEvalCount != nil {
		t.Error("think marker frames must not carry usage")
	}
}

func TestFrameCreatedAt_Parses(t *testing.T) {
	f := NewFrame("m1", Message{Role: RoleAssistant})
	if _, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err != nil {
		t.Errorf("created_at %q is not RFC3339Nano: %v", f.CreatedAt, err)
	}
}
