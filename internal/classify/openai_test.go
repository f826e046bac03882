package classify

import (
	"testing"
	"time"
)

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider("", "", "", 0); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOpenAIProviderWithTimeout(t *testing.T) {
	p, err := NewOpenAIProvider("sk-test", "http://127.0.0.1:1/v1", "test-model", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("name = %q", p.Name())
	}
}
