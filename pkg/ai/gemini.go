package ai

import (
	"context"

	"mailagent-backend/pkg/gemini"
)

// GeminiAgent implements AgentService on top of the Gemini REST client
type GeminiAgent struct {
	client *gemini.GeminiService
}

func NewGeminiAgent(client *gemini.GeminiService) *GeminiAgent {
	return &GeminiAgent{client: client}
}

// ClassifyEmail implements AgentService
func (g *GeminiAgent) ClassifyEmail(ctx context.Context, emailText string) (*ClassificationResult, error) {
	text, err := g.client.Generate(ctx, buildClassifyPrompt(emailText), gemini.GenerateOptions{
		Temperature:     0.1,
		MaxOutputTokens: 256,
		JSON:            true,
	})
	if err != nil {
		return nil, err
	}
	return parseClassification(text)
}

// DraftReply implements AgentService
func (g *GeminiAgent) DraftReply(ctx context.Context, req ReplyRequest) (string, error) {
	text, err := g.client.Generate(ctx, buildReplyPrompt(req), gemini.GenerateOptions{
		Temperature:     0.5,
		MaxOutputTokens: 800,
	})
	if err != nil {
		return "", err
	}
	return cleanReply(text)
}
