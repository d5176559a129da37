package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
)

// Transport sends one prompt to one backend family and returns the raw
// completion text. Transports report non-2xx responses as *HTTPStatusError.
type Transport interface {
	Complete(ctx context.Context, backend Backend, prompt string) (string, error)
}

type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend returned http %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func isThrottled(err error) bool {
	var he *HTTPStatusError
	return errors.As(err, &he) && he.StatusCode == http.StatusTooManyRequests
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: 2 * time.Second}
}

// Observer receives provider and repair outcomes. pkg/metrics implements it.
type Observer interface {
	ObserveProviderRequest(backend, outcome string)
	ObserveThrottleRetry(backend string)
	ObserveRepair(backend string, strategy RepairStrategy)
	ObserveFallback(from, to string)
}

type noopObserver struct{}

func (noopObserver) ObserveProviderRequest(string, string) {}
func (noopObserver) ObserveThrottleRetry(string)           {}
func (noopObserver) ObserveRepair(string, RepairStrategy)  {}
func (noopObserver) ObserveFallback(string, string)        {}

// Client is the provider invocation layer: it resolves a backend key and
// calls the matching transport, retrying throttled requests.
type Client struct {
	registry   *Registry
	transports map[Family]Transport
	retry      RetryPolicy
	sleep      Sleeper
	observer   Observer
	log        *zap.SugaredLogger
}

type ClientOption func(*Client)

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

func NewClient(registry *Registry, transports map[Family]Transport, opts ...ClientOption) *Client {
	c := &Client{
		registry:   registry,
		transports: transports,
		retry:      DefaultRetryPolicy(),
		sleep:      SleepContext,
		observer:   noopObserver{},
		log:        zap.S().Named("ai_client"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Registry() *Registry {
	return c.registry
}

// Generate sends prompt to the backend registered under backendKey (or the
// default backend) and returns the completion text with the backend used.
func (c *Client) Generate(ctx context.Context, prompt, backendKey string) (string, Backend, error) {
	backend := c.registry.Resolve(backendKey)
	text, err := c.GenerateWith(ctx, backend, prompt)
	return text, backend, err
}

func (c *Client) GenerateWith(ctx context.Context, backend Backend, prompt string) (string, error) {
	transport, ok := c.transports[backend.Family]
	if !ok {
		return "", domain.NewConfigurationError("no transport configured for backend %s (%s)", backend.Name, backend.Family)
	}

	if !backend.Throttled() {
		text, err := c.call(ctx, transport, backend, prompt)
		if err != nil {
			return "", providerError(backend, err)
		}
		return text, nil
	}

	backoff := c.retry.InitialBackoff
	for attempt := 0; ; attempt++ {
		text, err := c.call(ctx, transport, backend, prompt)
		if err == nil {
			return text, nil
		}
		if !isThrottled(err) {
			return "", providerError(backend, err)
		}
		if attempt >= c.retry.MaxRetries {
			c.observer.ObserveProviderRequest(backend.Key, "exhausted")
			return "", domain.NewProviderError(err, "max retries exceeded")
		}
		c.observer.ObserveThrottleRetry(backend.Key)
		c.log.Warnw("backend throttled, backing off",
			"backend", backend.Key,
			"attempt", attempt+1,
			"max_retries", c.retry.MaxRetries,
			"sleep", backoff.String(),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return "", domain.NewProviderError(err, "%s: %v", backend.Name, err)
		}
		backoff *= 2
	}
}

func (c *Client) call(ctx context.Context, transport Transport, backend Backend, prompt string) (string, error) {
	text, err := transport.Complete(ctx, backend, prompt)
	if err != nil {
		if isThrottled(err) {
			c.observer.ObserveProviderRequest(backend.Key, "throttled")
		} else {
			c.observer.ObserveProviderRequest(backend.Key, "error")
		}
		c.log.Debugw("backend call failed", "backend", backend.Key, "error", err)
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		c.observer.ObserveProviderRequest(backend.Key, "empty")
		return "", domain.NewProviderError(nil, "empty response from %s", backend.Name)
	}
	c.observer.ObserveProviderRequest(backend.Key, "ok")
	c.log.Debugw("backend responded", "backend", backend.Key, "output", truncate(text, 300))
	return text, nil
}

// providerError converts a transport failure into the pipeline taxonomy.
// Provider response bodies stay in the wrapped cause only.
func providerError(backend Backend, err error) error {
	if _, typed := domain.KindOf(err); typed {
		return err
	}
	var he *HTTPStatusError
	if errors.As(err, &he) {
		return domain.NewProviderError(err, "%s returned http %d", backend.Name, he.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewProviderError(err, "%s request cancelled: %v", backend.Name, err)
	}
	return domain.NewProviderError(err, "%s unreachable", backend.Name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
