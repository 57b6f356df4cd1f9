package registry

import (
	"context"
	"testing"
)

func TestRegistryMockChat(t *testing.T) {
	r := New()
	r.Register("llm.mock", runChat(&MockChatModel{Responses: []ChatOut{{Text: "hi"}}}))

	out, err := r.Call(context.Background(), "llm.mock", map[string]any{"prompt": "hello"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["text"] != "hi" {
		t.Fatalf("text = %v, want hi", out["text"])
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := New()
	if _, err := r.Call(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown package")
	}
}

func TestRegisterChatModel(t *testing.T) {
	r := New()
	r.RegisterChatModel("llm.anthropic", &MockChatModel{Responses: []ChatOut{{Text: "claude says hi"}}})
	out, err := r.Call(context.Background(), "llm.anthropic", map[string]any{"prompt": "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out["text"] != "claude says hi" {
		t.Fatalf("text = %v", out["text"])
	}
}

func TestHTTPRequestMissingURL(t *testing.T) {
	if _, err := HTTPRequest(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}
