package generation

import (
	"strings"
	"testing"
)

func TestParseSelectionPrompt(t *testing.T) {
	registry, err := NewActionRegistry()
	if err != nil {
		t.Fatalf("NewActionRegistry: %v", err)
	}

	tests := []struct {
		name     string
		prompt   string
		wantName string
		wantText string
		wantErr  bool
	}{
		{
			name:     "explicit action prefix",
			prompt:   "summarize: The project will deliver clean water.",
			wantName: "summarize",
			wantText: "The project will deliver clean water.",
		},
		{
			name:     "prefix whitespace is trimmed",
			prompt:   "  extend:   more detail please  ",
			wantName: "extend",
			wantText: "more detail please",
		},
		{
			name:     "uppercase prefix resolves",
			prompt:   "Simplify: dense paragraph",
			wantName: "simplify",
			wantText: "dense paragraph",
		},
		{
			name:     "no prefix defaults to refine",
			prompt:   "just some selected text",
			wantName: "refine",
			wantText: "just some selected text",
		},
		{
			name:     "unknown prefix falls back to refine with whole prompt",
			prompt:   "translate: bonjour",
			wantName: "refine",
			wantText: "translate: bonjour",
		},
		{
			name:    "empty prompt",
			prompt:  "   ",
			wantErr: true,
		},
		{
			name:    "action with no text",
			prompt:  "refine:",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, action, text, err := registry.ParseSelectionPrompt(tt.prompt)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSelectionPrompt: %v", err)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if action.Template == "" {
				t.Error("resolved action has no template")
			}
		})
	}
}

func TestActionRegistryLoadsExpectedActions(t *testing.T) {
	registry, err := NewActionRegistry()
	if err != nil {
		t.Fatalf("NewActionRegistry: %v", err)
	}

	for _, name := range []string{"refine", "extend", "summarize", "simplify"} {
		action, ok := registry.Get(name)
		if !ok {
			t.Errorf("action %q missing", name)
			continue
		}
		if !strings.Contains(action.Template, "{{text}}") {
			t.Errorf("action %q template has no {{text}} placeholder", name)
		}
	}

	if registry.GlobalEdit().Template == "" {
		t.Error("global edit template is empty")
	}
	if registry.Chat().System == "" {
		t.Error("chat system prompt is empty")
	}
}

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Rewrite:\n\n{{text}}\n\nPer: {{instruction}}", map[string]string{
		"text":        "body",
		"instruction": "shorter",
	})
	want := "Rewrite:\n\nbody\n\nPer: shorter"
	if got != want {
		t.Errorf("RenderTemplate = %q, want %q", got, want)
	}
}
