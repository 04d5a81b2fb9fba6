package ollama

import (
	"strings"
	"testing"

	"vendorsec-backend/internal/llm"
)

func TestFlattenSeparatesSystemPrompt(t *testing.T) {
	system, prompt := flatten([]llm.Message{
		{Role: llm.RoleSystem, Content: "You are a reviewer."},
		{Role: llm.RoleUser, Content: "Summarize."},
		{Role: llm.RoleAssistant, Content: "Sure."},
		{Role: llm.RoleUser, Content: "Shorter."},
	})
	if strings.TrimSpace(system) != "You are a reviewer." {
		t.Fatalf("unexpected system prompt %q", system)
	}
	if !strings.HasPrefix(prompt, "User: Summarize.") || !strings.HasSuffix(prompt, "Assistant:") {
		t.Fatalf("unexpected transcript %q", prompt)
	}
	if strings.Contains(prompt, "You are a reviewer.") {
		t.Fatalf("system content leaked into transcript")
	}
}

func TestNewClientDefaultsModel(t *testing.T) {
	c, err := NewClient("http://localhost:11434", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Model() != defaultModel || c.Provider() != "ollama" {
		t.Fatalf("unexpected client %s/%s", c.Provider(), c.Model())
	}
}
