package ai

import (
	"fmt"
	"sort"
	"strings"
)

// Family groups backends that share authentication and transport.
type Family string

const (
	// FamilyGateway is the internal ai-service /v1/chat endpoint.
	FamilyGateway Family = "gateway"
	// FamilyOpenAI is any OpenAI-compatible chat completions API.
	FamilyOpenAI Family = "openai"
	// FamilyAnthropic is the Anthropic messages API.
	FamilyAnthropic Family = "anthropic"
)

// Backend describes one selectable generation backend.
type Backend struct {
	Key     string
	Name    string
	Family  Family
	Model   string
	Default bool
}

// Throttled reports whether calls to this backend go through the 429
// retry policy. The gateway applies its own.
func (b Backend) Throttled() bool {
	return b.Family != FamilyGateway
}

func DefaultBackends() []Backend {
	return []Backend{
		{Key: "auto", Name: "AI Service", Family: FamilyGateway, Model: "auto", Default: true},
		{Key: "gpt-4o-mini", Name: "GPT-4o mini", Family: FamilyOpenAI, Model: "gpt-4o-mini"},
		{Key: "llama-3.3-70b", Name: "Llama 3.3 70B", Family: FamilyOpenAI, Model: "llama-3.3-70b-versatile"},
		{Key: "claude-haiku", Name: "Claude Haiku", Family: FamilyAnthropic, Model: "claude-3-5-haiku-latest"},
	}
}

// Registry resolves backend keys. It is built once at startup and never
// mutated afterwards.
type Registry struct {
	backends map[string]Backend
	def      Backend
}

func NewRegistry(backends []Backend, defaultKey string) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		if b.Key == "" {
			return nil, fmt.Errorf("backend %q has no key", b.Name)
		}
		if _, dup := r.backends[b.Key]; dup {
			return nil, fmt.Errorf("duplicate backend key %q", b.Key)
		}
		b.Default = false
		r.backends[b.Key] = b
	}
	if defaultKey == "" {
		for _, b := range backends {
			if b.Default {
				defaultKey = b.Key
				break
			}
		}
	}
	def, ok := r.backends[defaultKey]
	if !ok {
		return nil, fmt.Errorf("default backend %q is not registered", defaultKey)
	}
	def.Default = true
	r.backends[def.Key] = def
	r.def = def
	return r, nil
}

// Resolve returns the backend for key, or the default backend when the key
// is empty or unknown.
func (r *Registry) Resolve(key string) Backend {
	if b, ok := r.backends[strings.TrimSpace(key)]; ok {
		return b
	}
	return r.def
}

func (r *Registry) Default() Backend {
	return r.def
}

// Known reports whether key names a registered backend.
func (r *Registry) Known(key string) bool {
	_, ok := r.backends[key]
	return ok
}

func (r *Registry) List() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
