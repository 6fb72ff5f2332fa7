// Package provider wraps the OpenAI-compatible speech and chat providers behind a per-run
// session that rotates through the configured API keys.
package provider

import (
	"fmt"
	"strings"

	"github.com/ClareAI/astra-voicenote-service/internal/config"
)

// Name identifies a logical provider.
type Name string

const (
	Groq   Name = "groq"
	OpenAI Name = "openai"
)

// Spec describes how to reach a provider and which models to use on it.
type Spec struct {
	Name               Name
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
}

// ParseName validates a provider name.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case Groq, OpenAI:
		return n, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// DefaultSpecs returns the provider table, with base URLs taken from cfg when set.
func DefaultSpecs(cfg *config.ServiceConfig) map[Name]Spec {
	groqURL, openaiURL := config.DefaultGroqBaseURL, config.DefaultOpenAIBaseURL
	if cfg != nil {
		if cfg.GroqBaseURL != "" {
			groqURL = cfg.GroqBaseURL
		}
		if cfg.OpenAIBaseURL != "" {
			openaiURL = cfg.OpenAIBaseURL
		}
	}

	return map[Name]Spec{
		Groq: {
			Name:               Groq,
			BaseURL:            groqURL,
			TranscriptionModel: "whisper-large-v3",
			ChatModel:          "llama-3.3-70b-versatile",
		},
		OpenAI: {
			Name:               OpenAI,
			BaseURL:            openaiURL,
			TranscriptionModel: "whisper-1",
			ChatModel:          "gpt-4o-mini",
		},
	}
}
