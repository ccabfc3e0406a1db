package anthropic

import (
	"testing"
	"time"

	"github.com/Strob0t/CodeTutor/internal/port/llm"
	"github.com/Strob0t/CodeTutor/internal/secrets"
)

func TestRegistered(t *testing.T) {
	p, ok := llm.Lookup(providerName)
	if !ok {
		t.Fatal("anthropic provider not registered")
	}
	if p.SecretKey != secrets.AnthropicAPIKey {
		t.Fatalf("secret key = %q", p.SecretKey)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(llm.ProviderConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := New(llm.ProviderConfig{APIKey: "test", Model: "claude-test", Timeout: time.Second}); err != nil {
		t.Fatal(err)
	}
}
