package ai

import (
	"context"
	"time"

	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
)

// Validator checks a parsed value against the expected result shape.
type Validator interface {
	Validate(value map[string]any) error
}

type StructuredResult struct {
	Value    map[string]any
	Raw      string
	Backend  Backend
	Strategy RepairStrategy
	// Attempts counts generation calls across the selected backend and the
	// fallback, throttle retries excluded.
	Attempts int
	FellBack bool
}

// StructuredClient wraps a Client with the repair chain and two retry
// levels: malformed attempts against the same backend, then one fallback
// to the default backend.
type StructuredClient struct {
	client    *Client
	validator Validator
	attempts  int
	delay     time.Duration
	log       *zap.SugaredLogger
}

type StructuredOption func(*StructuredClient)

func WithValidator(v Validator) StructuredOption {
	return func(s *StructuredClient) { s.validator = v }
}

func WithRepairPolicy(attempts int, delay time.Duration) StructuredOption {
	return func(s *StructuredClient) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.delay = delay
	}
}

func NewStructuredClient(client *Client, opts ...StructuredOption) *StructuredClient {
	s := &StructuredClient{
		client:   client,
		attempts: 3,
		delay:    time.Second,
		log:      zap.S().Named("structured_client"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *StructuredClient) GenerateJSON(ctx context.Context, prompt, backendKey string) (StructuredResult, error) {
	backend := s.client.registry.Resolve(backendKey)

	res, err := s.attemptAll(ctx, backend, prompt)
	if err == nil {
		return res, nil
	}
	if stopsRetry(ctx, err) || backend.Default {
		return res, err
	}

	fallback := s.client.registry.Default()
	s.client.observer.ObserveFallback(backend.Key, fallback.Key)
	s.log.Warnw("backend exhausted, falling back to default",
		"backend", backend.Key,
		"fallback", fallback.Key,
		"attempts", res.Attempts,
		"error", err,
	)

	fres, ferr := s.attemptAll(ctx, fallback, prompt)
	fres.Attempts += res.Attempts
	fres.FellBack = true
	return fres, ferr
}

func (s *StructuredClient) attemptAll(ctx context.Context, backend Backend, prompt string) (StructuredResult, error) {
	res := StructuredResult{Backend: backend, Strategy: StrategyFailed}
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		res.Attempts = attempt
		text, err := s.client.GenerateWith(ctx, backend, prompt)
		if err == nil {
			res.Raw = text
			value, strategy, perr := s.parse(backend, text)
			if perr == nil {
				s.client.observer.ObserveRepair(backend.Key, strategy)
				res.Value = value
				res.Strategy = strategy
				return res, nil
			}
			s.client.observer.ObserveRepair(backend.Key, StrategyFailed)
			err = perr
		}
		lastErr = err
		s.log.Infow("generation attempt failed",
			"backend", backend.Key,
			"attempt", attempt,
			"max_attempts", s.attempts,
			"error", err,
		)
		if stopsRetry(ctx, err) {
			return res, err
		}
		if attempt < s.attempts {
			if serr := s.client.sleep(ctx, s.delay); serr != nil {
				return res, domain.NewProviderError(serr, "%s: %v", backend.Name, serr)
			}
		}
	}
	return res, lastErr
}

func (s *StructuredClient) parse(backend Backend, text string) (map[string]any, RepairStrategy, error) {
	value, strategy, err := ParseStructured(text)
	if err != nil {
		return nil, strategy, domain.NewMalformedOutputError(err, "%s returned output that is not a JSON object", backend.Name)
	}
	if s.validator != nil {
		if verr := s.validator.Validate(value); verr != nil {
			return nil, StrategyFailed, domain.NewMalformedOutputError(verr, "%s returned invalid result: %v", backend.Name, verr)
		}
	}
	return value, strategy, nil
}

// stopsRetry reports errors that neither retry level may absorb.
func stopsRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return domain.IsKind(err, domain.KindConfiguration)
}
