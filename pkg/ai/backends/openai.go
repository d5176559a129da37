package backends

import (
	"context"
	"net/http"
	"strings"

	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI speaks the chat completions protocol, which most hosted model
// routers also accept.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewOpenAI(client *http.Client, baseURL, apiKey string) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, backend ai.Backend, prompt string) (string, error) {
	if o.apiKey == "" {
		return "", domain.NewConfigurationError("OPENAI_API_KEY is not set (backend %s)", backend.Name)
	}

	req := chatCompletionRequest{
		Model:       backend.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var resp chatCompletionResponse
	if err := postJSON(ctx, o.client, o.baseURL+"/v1/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
