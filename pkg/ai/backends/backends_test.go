package backends

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
)

func backend(t *testing.T, key string) ai.Backend {
	t.Helper()
	reg, err := ai.NewRegistry(ai.DefaultBackends(), "")
	require.NoError(t, err)
	require.True(t, reg.Known(key))
	return reg.Resolve(key)
}

func TestGatewayComplete(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"agent": "auto", "output": `{"name":"Ada"}`})
	}))
	defer srv.Close()

	g := NewGateway(srv.Client(), srv.URL+"/")
	out, err := g.Complete(context.Background(), backend(t, "auto"), "analyze")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada"}`, out)
	assert.Equal(t, map[string]string{"agent": "auto", "input": "analyze"}, got)
}

func TestGatewayMissingURL(t *testing.T) {
	g := NewGateway(http.DefaultClient, "")
	_, err := g.Complete(context.Background(), backend(t, "auto"), "analyze")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "analyze", req.Messages[0].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.Client(), srv.URL, "sk-test")
	out, err := o.Complete(context.Background(), backend(t, "llama-3.3-70b"), "analyze")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIMissingKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	o := NewOpenAI(srv.Client(), srv.URL, "")
	_, err := o.Complete(context.Background(), backend(t, "gpt-4o-mini"), "analyze")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.False(t, called)
}

func TestOpenAIThrottleSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	o := NewOpenAI(srv.Client(), srv.URL, "sk-test")
	_, err := o.Complete(context.Background(), backend(t, "gpt-4o-mini"), "analyze")
	var he *ai.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusTooManyRequests, he.StatusCode)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		assert.Equal(t, anthropicMaxTokens, req.MaxTokens)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic(srv.Client(), srv.URL, "ak-test")
	out, err := a.Complete(context.Background(), backend(t, "claude-haiku"), "analyze")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestNewTransportsCoversEveryFamily(t *testing.T) {
	tr := NewTransports(Config{})
	for _, f := range []ai.Family{ai.FamilyGateway, ai.FamilyOpenAI, ai.FamilyAnthropic} {
		assert.Contains(t, tr, f)
	}
}
