package ai

import (
	"context"
	"errors"
)

var (
	// ErrMissingAPIKey is returned when a provider that needs an API key has none
	ErrMissingAPIKey = errors.New("ai: api key is required")
	// ErrMalformedResponse is returned when the model answered but the answer could not be parsed
	ErrMalformedResponse = errors.New("ai: malformed model response")
	// ErrNoProvider is returned when no provider is configured
	ErrNoProvider = errors.New("ai: no provider available")
)

// ClassificationResult is the raw decision returned by a model.
// Action is not validated here and Confidence is not clamped.
type ClassificationResult struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ReplyRequest carries the context needed to draft a reply
type ReplyRequest struct {
	FromEmail           string
	FromName            string
	Subject             string
	Body                string
	PersonalDescription string
	ResumeLink          string
}

// AgentService is the interface for email classification and reply drafting.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type AgentService interface {
	ClassifyEmail(ctx context.Context, emailText string) (*ClassificationResult, error)
	DraftReply(ctx context.Context, req ReplyRequest) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
