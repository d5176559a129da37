package backends

import (
	"context"
	"net/http"
	"strings"

	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 4096
)

type Anthropic struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewAnthropic(client *http.Client, baseURL, apiKey string) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, backend ai.Backend, prompt string) (string, error) {
	if a.apiKey == "" {
		return "", domain.NewConfigurationError("ANTHROPIC_API_KEY is not set (backend %s)", backend.Name)
	}

	req := messagesRequest{
		Model:     backend.Model,
		MaxTokens: anthropicMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp messagesResponse
	if err := postJSON(ctx, a.client, a.baseURL+"/v1/messages", headers, req, &resp); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}
