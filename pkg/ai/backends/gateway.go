package backends

import (
	"context"
	"net/http"
	"strings"

	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
)

// Gateway calls the internal ai-service chat endpoint. The backend model is
// sent as the agent name.
type Gateway struct {
	client  *http.Client
	baseURL string
}

func NewGateway(client *http.Client, baseURL string) *Gateway {
	return &Gateway{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *Gateway) Complete(ctx context.Context, backend ai.Backend, prompt string) (string, error) {
	if g.baseURL == "" {
		return "", domain.NewConfigurationError("AI_SERVICE_URL is not set (backend %s)", backend.Name)
	}
	agent := backend.Model
	if agent == "" {
		agent = "auto"
	}

	var chatResp struct {
		Agent  string `json:"agent"`
		Output string `json:"output"`
	}
	req := map[string]string{"agent": agent, "input": prompt}
	if err := postJSON(ctx, g.client, g.baseURL+"/v1/chat", nil, req, &chatResp); err != nil {
		return "", err
	}
	return chatResp.Output, nil
}
