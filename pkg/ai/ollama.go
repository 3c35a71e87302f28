package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaService implements AgentService using Ollama local LLM
type OllamaService struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

// generate runs a non-streaming completion and returns the raw response text
func (o *OllamaService) generate(ctx context.Context, prompt string, options map[string]interface{}, format string) (string, error) {
	url := o.baseURL + "/api/generate"

	payload := map[string]interface{}{
		"model":   o.model,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}
	if format != "" {
		payload["format"] = format
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Response, nil
}

// ClassifyEmail implements AgentService
func (o *OllamaService) ClassifyEmail(ctx context.Context, emailText string) (*ClassificationResult, error) {
	text, err := o.generate(ctx, buildClassifyPrompt(emailText), map[string]interface{}{
		"temperature": 0.1, // Low temperature for stable decisions
		"num_predict": 200,
	}, "json")
	if err != nil {
		return nil, err
	}
	return parseClassification(text)
}

// DraftReply implements AgentService
func (o *OllamaService) DraftReply(ctx context.Context, req ReplyRequest) (string, error) {
	text, err := o.generate(ctx, buildReplyPrompt(req), map[string]interface{}{
		"temperature": 0.5,
		"num_predict": 400,
	}, "")
	if err != nil {
		return "", err
	}
	return cleanReply(text)
}
