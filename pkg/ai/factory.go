package ai

import (
	"strings"

	"mailagent-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama" or "auto"

	// Gemini config
	GeminiAPIKey   string
	GeminiBaseURL  string      // optional override
	GeminiBreakers *BreakerSet // nil disables breaking

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// ParseProvider maps a config string to a ProviderType, defaulting to auto
func ParseProvider(raw string) ProviderType {
	switch ProviderType(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderGemini:
		return ProviderGemini
	case ProviderOllama:
		return ProviderOllama
	default:
		return ProviderAuto
	}
}

func newGemini(cfg Config) AgentService {
	client := gemini.NewGeminiService(cfg.GeminiAPIKey)
	if cfg.GeminiBaseURL != "" {
		client.BaseURL = cfg.GeminiBaseURL
	}
	return NewGeminiAgent(client)
}

// NewAgentService creates an AgentService based on the config.
// Switch AI provider by changing cfg.Provider.
func NewAgentService(cfg Config) (AgentService, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewFallbackService(newGemini(cfg), nil, cfg.GeminiBreakers.For(cfg.GeminiAPIKey)), nil

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		// Gemini with Ollama fallback if an API key is available, otherwise Ollama
		ollama := NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(newGemini(cfg), ollama, cfg.GeminiBreakers.For(cfg.GeminiAPIKey)), nil
		}
		return ollama, nil
	}
}
