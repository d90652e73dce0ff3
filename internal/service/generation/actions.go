package generation

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Action is one selection-scoped prompt template.
type Action struct {
	DisplayName string `yaml:"display_name"`
	System      string `yaml:"system"`
	Template    string `yaml:"template"`
}

// GlobalEditPrompt holds the whole-document edit template.
type GlobalEditPrompt struct {
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// ChatPrompt holds the chat system prompt.
type ChatPrompt struct {
	System string `yaml:"system"`
}

type actionsFile struct {
	Actions    map[string]Action `yaml:"actions"`
	Chat       ChatPrompt        `yaml:"chat"`
	GlobalEdit GlobalEditPrompt  `yaml:"global_edit"`
}

// ActionRegistry holds the prompt templates loaded from the embedded YAML.
type ActionRegistry struct {
	actions    map[string]Action
	chat       ChatPrompt
	globalEdit GlobalEditPrompt
}

// NewActionRegistry loads the embedded action templates.
func NewActionRegistry() (*ActionRegistry, error) {
	data, err := configFiles.ReadFile("config/actions.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read actions.yaml: %w", err)
	}

	var file actionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions.yaml: %w", err)
	}
	if len(file.Actions) == 0 {
		return nil, fmt.Errorf("actions.yaml defines no actions")
	}

	return &ActionRegistry{
		actions:    file.Actions,
		chat:       file.Chat,
		globalEdit: file.GlobalEdit,
	}, nil
}

// Get returns the named selection action.
func (r *ActionRegistry) Get(name string) (Action, bool) {
	action, ok := r.actions[name]
	return action, ok
}

// Chat returns the chat system prompt.
func (r *ActionRegistry) Chat() ChatPrompt {
	return r.chat
}

// GlobalEdit returns the whole-document edit template.
func (r *ActionRegistry) GlobalEdit() GlobalEditPrompt {
	return r.globalEdit
}

// Names returns the names of all selection actions.
func (r *ActionRegistry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}

// ParseSelectionPrompt splits a selection prompt of the form "<action>: <text>"
// and resolves the action against the registry. Prompts with no recognized
// action prefix default to refine with the whole prompt as the text.
func (r *ActionRegistry) ParseSelectionPrompt(prompt string) (name string, action Action, text string, err error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", Action{}, "", fmt.Errorf("prompt cannot be empty")
	}

	if head, rest, found := strings.Cut(trimmed, ":"); found {
		candidate := strings.ToLower(strings.TrimSpace(head))
		if a, ok := r.actions[candidate]; ok {
			body := strings.TrimSpace(rest)
			if body == "" {
				return "", Action{}, "", fmt.Errorf("action '%s' has no text", candidate)
			}
			return candidate, a, body, nil
		}
	}

	a, ok := r.actions["refine"]
	if !ok {
		return "", Action{}, "", fmt.Errorf("default action 'refine' is not defined")
	}
	return "refine", a, trimmed, nil
}

// RenderTemplate substitutes {{placeholders}} in a template.
func RenderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(out)
}
