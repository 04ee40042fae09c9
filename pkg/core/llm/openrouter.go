package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterProvider calls chat models (DeepSeek R1 by default) through the
// OpenRouter API.
type OpenRouterProvider struct {
	Model  string // e.g. "deepseek/deepseek-r1-0528"
	client *http.Client
}

var _ Provider = (*OpenRouterProvider)(nil)

// NewOpenRouterProvider creates a provider with the given model and timeout.
func NewOpenRouterProvider(model string, timeout time.Duration) *OpenRouterProvider {
	if model == "" {
		model = "deepseek/deepseek-r1-0528"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenRouterProvider{
		Model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *OpenRouterProvider) Name() string { return "openrouter/" + p.Model }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends a system+user prompt pair and returns the raw completion.
func (p *OpenRouterProvider) Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}

	reqBody := chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openRouterURL, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter API call failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openrouter API returned status %d: %s", res.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse openrouter response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openrouter response had no choices: %s", string(body))
	}

	return response.Choices[0].Message.Content, nil
}
