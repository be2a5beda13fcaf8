package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CopyDeck holds the static product copy shown and spoken during a
// session: prompts, the completion message, and inline error strings.
type CopyDeck struct {
	Intro        string `yaml:"intro"`
	ResumePrompt string `yaml:"resumePrompt"`
	Completion   string `yaml:"completion"`
	StartError   string `yaml:"startError"`
	AnswerError  string `yaml:"answerError"`
}

// DefaultCopyDeck returns the built-in copy used when no deck file exists.
func DefaultCopyDeck() *CopyDeck {
	return &CopyDeck{
		Intro:        "Welcome. I'll ask a few questions about how your company works today so we can assess your AI readiness.",
		ResumePrompt: "You have an assessment in progress. Continue where you left off, or start over?",
		Completion:   "That's everything I need. Give me a moment to put your readiness report together.",
		StartError:   "I couldn't reach the assessment service. Please try again.",
		AnswerError:  "I couldn't save that answer. Please try again.",
	}
}

// LoadCopyDeck reads a copy deck from a YAML file, falling back to the
// defaults for any field left empty.
func LoadCopyDeck(path string) (*CopyDeck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read copy deck: %w", err)
	}

	deck := DefaultCopyDeck()
	if err := yaml.Unmarshal(data, deck); err != nil {
		return nil, fmt.Errorf("failed to parse copy deck: %w", err)
	}
	return deck, nil
}
