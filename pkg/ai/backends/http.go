// Package backends holds one ai.Transport per backend family.
package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"profile-analyzer/pkg/ai"
)

// Config carries the per-family endpoints and credentials. Credentials are
// checked when a backend is called, not at startup, so an unconfigured
// family only fails the jobs that select it.
type Config struct {
	GatewayURL       string
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	AnthropicBaseURL string
	AnthropicAPIKey  string
	Timeout          time.Duration
}

// NewTransports builds the transport for every family.
func NewTransports(cfg Config) map[ai.Family]ai.Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return map[ai.Family]ai.Transport{
		ai.FamilyGateway:   NewGateway(httpClient, cfg.GatewayURL),
		ai.FamilyOpenAI:    NewOpenAI(httpClient, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey),
		ai.FamilyAnthropic: NewAnthropic(httpClient, cfg.AnthropicBaseURL, cfg.AnthropicAPIKey),
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ai.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(rb)}
	}
	return json.Unmarshal(rb, out)
}
