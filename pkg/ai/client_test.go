package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-analyzer/internal/domain"
)

// scriptedTransport answers calls from a per-backend script. The last entry
// repeats once the script runs out.
type scriptedTransport struct {
	mu      sync.Mutex
	scripts map[string][]reply
	calls   []string
}

type reply struct {
	text string
	err  error
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{scripts: map[string][]reply{}}
}

func (t *scriptedTransport) on(key string, replies ...reply) *scriptedTransport {
	t.scripts[key] = replies
	return t
}

func (t *scriptedTransport) Complete(_ context.Context, backend Backend, _ string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c == backend.Key {
			n++
		}
	}
	t.calls = append(t.calls, backend.Key)
	script := t.scripts[backend.Key]
	if len(script) == 0 {
		return "", errors.New("no script for " + backend.Key)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].text, script[n].err
}

func (t *scriptedTransport) callsTo(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c == key {
			n++
		}
	}
	return n
}

type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return ctx.Err()
}

func throttled() reply {
	return reply{err: &HTTPStatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}}
}

func newTestClient(t *testing.T, tr Transport, sleeper *recordingSleeper) *Client {
	t.Helper()
	reg, err := NewRegistry(DefaultBackends(), "")
	require.NoError(t, err)
	transports := map[Family]Transport{
		FamilyGateway:   tr,
		FamilyOpenAI:    tr,
		FamilyAnthropic: tr,
	}
	return NewClient(reg, transports, WithSleeper(sleeper.Sleep))
}

func TestGenerateRetriesThrottledBackend(t *testing.T) {
	tr := newScriptedTransport().on("gpt-4o-mini", throttled(), throttled(), throttled(), reply{text: "ok"})
	sleeper := &recordingSleeper{}
	c := newTestClient(t, tr, sleeper)

	text, backend, err := c.Generate(context.Background(), "prompt", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "gpt-4o-mini", backend.Key)
	assert.Equal(t, 4, tr.callsTo("gpt-4o-mini"))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.slept)
}

func TestGenerateFailsAfterMaxRetries(t *testing.T) {
	tr := newScriptedTransport().on("claude-haiku", throttled())
	sleeper := &recordingSleeper{}
	c := newTestClient(t, tr, sleeper)

	_, _, err := c.Generate(context.Background(), "prompt", "claude-haiku")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindProvider))
	assert.Equal(t, "max retries exceeded", err.Error())
	assert.Equal(t, 4, tr.callsTo("claude-haiku"))
	assert.Len(t, sleeper.slept, 3)
}

func TestGenerateDoesNotRetryOtherErrors(t *testing.T) {
	tr := newScriptedTransport().on("gpt-4o-mini",
		reply{err: &HTTPStatusError{StatusCode: http.StatusInternalServerError, Body: "stack trace here"}},
		reply{text: "never reached"},
	)
	sleeper := &recordingSleeper{}
	c := newTestClient(t, tr, sleeper)

	_, _, err := c.Generate(context.Background(), "prompt", "gpt-4o-mini")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindProvider))
	assert.Equal(t, "GPT-4o mini returned http 500", err.Error())
	assert.NotContains(t, err.Error(), "stack trace")
	assert.Equal(t, 1, tr.callsTo("gpt-4o-mini"))
	assert.Empty(t, sleeper.slept)
}

func TestGenerateGatewayIsNotThrottleRetried(t *testing.T) {
	tr := newScriptedTransport().on("auto", throttled(), reply{text: "ok"})
	sleeper := &recordingSleeper{}
	c := newTestClient(t, tr, sleeper)

	_, backend, err := c.Generate(context.Background(), "prompt", "")
	require.Error(t, err)
	assert.Equal(t, "auto", backend.Key)
	assert.True(t, domain.IsKind(err, domain.KindProvider))
	assert.Equal(t, 1, tr.callsTo("auto"))
	assert.Empty(t, sleeper.slept)
}

func TestGenerateUnknownKeyUsesDefault(t *testing.T) {
	tr := newScriptedTransport().on("auto", reply{text: "hello"})
	c := newTestClient(t, tr, &recordingSleeper{})

	text, backend, err := c.Generate(context.Background(), "prompt", "no-such-model")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.True(t, backend.Default)
}

func TestGenerateEmptyResponseIsProviderError(t *testing.T) {
	tr := newScriptedTransport().on("auto", reply{text: "  \n"})
	c := newTestClient(t, tr, &recordingSleeper{})

	_, _, err := c.Generate(context.Background(), "prompt", "auto")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindProvider))
	assert.Equal(t, "empty response from AI Service", err.Error())
}

func TestGenerateConfigurationErrorPassesThrough(t *testing.T) {
	tr := newScriptedTransport().on("gpt-4o-mini", reply{err: domain.NewConfigurationError("OPENAI_API_KEY is not set")})
	c := newTestClient(t, tr, &recordingSleeper{})

	_, _, err := c.Generate(context.Background(), "prompt", "gpt-4o-mini")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	assert.Equal(t, "OPENAI_API_KEY is not set", err.Error())
}

func TestGenerateMissingTransport(t *testing.T) {
	reg, err := NewRegistry(DefaultBackends(), "")
	require.NoError(t, err)
	c := NewClient(reg, map[Family]Transport{})

	_, _, err = c.Generate(context.Background(), "prompt", "claude-haiku")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(DefaultBackends(), "claude-haiku")
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku", reg.Default().Key)
	assert.True(t, reg.Resolve("").Default)
	assert.False(t, reg.Resolve("auto").Default)
	assert.True(t, reg.Known("llama-3.3-70b"))
	assert.False(t, reg.Known("gpt-5"))

	keys := []string{}
	for _, b := range reg.List() {
		keys = append(keys, b.Key)
	}
	assert.Equal(t, []string{"auto", "claude-haiku", "gpt-4o-mini", "llama-3.3-70b"}, keys)

	_, err = NewRegistry(DefaultBackends(), "missing")
	assert.Error(t, err)

	_, err = NewRegistry([]Backend{{Key: "a"}, {Key: "a"}}, "a")
	assert.Error(t, err)
}
