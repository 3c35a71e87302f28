package usecase

import (
	"context"
	"errors"
	"fmt"

	"mailagent-backend/internal/agent/domain"
	"mailagent-backend/pkg/ai"
	"mailagent-backend/pkg/utils/crypto"
)

// aiClassifier implements Classifier with the user's own model key,
// falling back to the server key when the user has none
type aiClassifier struct {
	creds         CredentialStore
	base          ai.Config
	encryptionKey string
	newAgent      func(cfg ai.Config) (ai.AgentService, error)
}

// NewAIClassifier builds a Classifier. base carries the provider choice,
// Ollama settings, the shared Gemini breaker and the server fallback key.
func NewAIClassifier(creds CredentialStore, base ai.Config, encryptionKey string) Classifier {
	return &aiClassifier{
		creds:         creds,
		base:          base,
		encryptionKey: encryptionKey,
		newAgent:      ai.NewAgentService,
	}
}

func (c *aiClassifier) agentFor(ctx context.Context, userID string) (ai.AgentService, error) {
	cred, err := c.creds.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if cred == nil {
		return nil, domain.ErrCredentialNotFound
	}

	cfg := c.base
	if cred.ClassifierKey != "" {
		key, err := crypto.Decrypt(cred.ClassifierKey, c.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt classifier key: %w", err)
		}
		cfg.GeminiAPIKey = key
	}

	agent, err := c.newAgent(cfg)
	if errors.Is(err, ai.ErrMissingAPIKey) {
		return nil, domain.ErrClassifierKeyMissing
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

func (c *aiClassifier) Classify(ctx context.Context, userID, body string) (*domain.Classification, error) {
	agent, err := c.agentFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := agent.ClassifyEmail(ctx, body)
	if err != nil {
		return nil, err
	}
	action, err := domain.ParseAction(raw.Action)
	if err != nil {
		return nil, err
	}
	return &domain.Classification{
		Action:     action,
		Confidence: domain.ClampConfidence(raw.Confidence),
		Reasoning:  raw.Reasoning,
	}, nil
}

func (c *aiClassifier) DraftReply(ctx context.Context, userID string, req ReplyDraftRequest) (string, error) {
	agent, err := c.agentFor(ctx, userID)
	if err != nil {
		return "", err
	}
	return agent.DraftReply(ctx, ai.ReplyRequest{
		FromEmail:           req.FromEmail,
		FromName:            req.FromName,
		Subject:             req.Subject,
		Body:                req.Body,
		PersonalDescription: req.PersonalDescription,
		ResumeLink:          req.ResumeLink,
	})
}
