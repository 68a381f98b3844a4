package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Router owns the registered providers and resolves which backend services
// a given agent, with fallback on failure.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	bindings  map[string]string   // agent name -> provider id
	fallbacks map[string][]string // provider id -> ordered fallback ids
	defaultID string
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider. The first registered provider becomes the
// default unless SetDefault overrides it.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaultID == "" {
		r.defaultID = p.ID()
	}
	r.logger.Info("provider registered", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider id.
func (r *Router) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("provider %s not registered", id)
	}
	r.defaultID = id
	return nil
}

// Bind routes an agent's completions to a specific provider.
func (r *Router) Bind(agentName, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[providerID]; !ok {
		return fmt.Errorf("provider %s not registered", providerID)
	}
	r.bindings[agentName] = providerID
	return nil
}

// SetFallbacks sets the ordered fallback chain tried when a provider fails.
func (r *Router) SetFallbacks(providerID string, fallbackIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[providerID] = fallbackIDs
}

// Provider returns a registered provider by id.
func (r *Router) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns all registered providers.
func (r *Router) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// resolve returns the primary provider for an agent plus its fallback chain.
func (r *Router) resolve(agentName string) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.defaultID
	if bound, ok := r.bindings[agentName]; ok {
		primary = bound
	}
	if primary == "" {
		return nil, fmt.Errorf("no providers registered")
	}

	ids := append([]string{primary}, r.fallbacks[primary]...)
	chain := make([]Provider, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.providers[id]; ok {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("provider %s not registered", primary)
	}
	return chain, nil
}

// Complete routes a completion through the agent's provider chain, trying
// fallbacks in order until one succeeds.
func (r *Router) Complete(ctx context.Context, agentName string, req *CompletionRequest) (*CompletionResponse, error) {
	chain, err := r.resolve(agentName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, p := range chain {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("fallback provider served completion",
					zap.String("agent", agentName), zap.String("provider", p.ID()))
			}
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("provider failed",
			zap.String("agent", agentName),
			zap.String("provider", p.ID()),
			zap.Error(err))
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", agentName, lastErr)
}

// NewFromConfig builds a provider from its config block.
func NewFromConfig(cfg Config, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
