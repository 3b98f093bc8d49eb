// Package prompt renders chat message histories into the flat prompt format a
// local model was trained on.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/max-7189/GraceAi/internal/openai"
)

// Template describes a chat prompt format: how each role is opened, how a turn
// is closed, and the optional chain-of-thought priming phrase.
type Template struct {
	SystemOpen    string `yaml:"system_open"`
	UserOpen      string `yaml:"user_open"`
	AssistantOpen string `yaml:"assistant_open"`
	EndOfTurn     string `yaml:"end_of_turn"`
	// ChainOfThought is appended right after the assistant opener when the
	// request asks for chain-of-thought priming.
	ChainOfThought string `yaml:"chain_of_thought"`
}

// DeepSeek returns the prompt template for DeepSeek chat models.
func DeepSeek() Template {
	return Template{
		SystemOpen:     "<|system|>\n",
		UserOpen:       "<|user|>\n",
		AssistantOpen:  "<|assistant|>\n",
		EndOfTurn:      "</s>\n",
		ChainOfThought: "让我思考一下。\n\n",
	}
}

// Load reads a template override from a YAML file.
func Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template: %w", err)
	}
	tpl := DeepSeek()
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("parse template: %w", err)
	}
	if err := tpl.Validate(); err != nil {
		return Template{}, err
	}
	return tpl, nil
}

// Validate rejects templates that cannot delimit turns.
func (t Template) Validate() error {
	if t.AssistantOpen == "" {
		return fmt.Errorf("prompt template: assistant_open required")
	}
	if t.EndOfTurn == "" {
		return fmt.Errorf("prompt template: end_of_turn required")
	}
	return nil
}

// Build renders the ordered message history into a single prompt ending with
// the assistant opener so the model continues as the assistant. Messages with
// an unrecognised role are silently skipped; content passes through verbatim.
func (t Template) Build(messages []openai.ChatMessage, enableCOT bool) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			b.WriteString(t.SystemOpen)
		case "user":
			b.WriteString(t.UserOpen)
		case "assistant":
			b.WriteString(t.AssistantOpen)
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString(t.EndOfTurn)
	}

	b.WriteString(t.AssistantOpen)
	if enableCOT {
		b.WriteString(t.ChainOfThought)
	}
	return b.String()
}

// StopSequences returns the literal substrings at which the backend must halt
// generation: the end-of-turn marker and the user opener.
func (t Template) StopSequences() []string {
	return []string{strings.TrimSuffix(t.EndOfTurn, "\n"), strings.TrimSuffix(t.UserOpen, "\n")}
}
