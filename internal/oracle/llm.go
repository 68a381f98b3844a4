package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/vault-city/internal/provider"
	"go.uber.org/zap"
)

const defaultSystemPrompt = `You are the inner voice of a simulated character. Respond with a single JSON object:
{"content": "your thought", "confidence": 0.0-1.0, "evidence": [...], "alternatives": [...], "action": {"tool": "...", "parameters": {...}}, "appearance": {...}}
Only include action or appearance when the stage calls for a decision. Keep content to a few sentences.`

// LLM routes oracle calls through the provider router with retry and
// degradation on failure.
type LLM struct {
	router      *provider.Router
	maxAttempts int
	baseDelay   time.Duration
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// LLMOption tunes the LLM oracle.
type LLMOption func(*LLM)

// WithRetry sets the attempt count and base backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) LLMOption {
	return func(l *LLM) {
		l.maxAttempts = attempts
		l.baseDelay = baseDelay
	}
}

// WithSampling sets temperature and token limits.
func WithSampling(temperature float64, maxTokens int) LLMOption {
	return func(l *LLM) {
		l.temperature = temperature
		l.maxTokens = maxTokens
	}
}

// NewLLM creates an oracle backed by the provider router.
func NewLLM(router *provider.Router, logger *zap.Logger, opts ...LLMOption) *LLM {
	l := &LLM{
		router:      router,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		temperature: 0.7,
		maxTokens:   1024,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Invoke completes the request, retrying transport failures with exponential
// backoff. Parse problems never surface as errors; malformed output becomes
// a degraded plain-text result.
func (l *LLM) Invoke(ctx context.Context, req Request) (*Result, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}
	creq := &provider.CompletionRequest{
		Messages: []provider.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: fmt.Sprintf("[stage: %s]\n%s", req.Stage, req.Context)},
		},
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := l.baseDelay << uint(attempt-1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := l.router.Complete(ctx, req.Agent, creq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("oracle call failed",
				zap.String("agent", req.Agent),
				zap.String("stage", req.Stage),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return ParseResult(resp.Content), nil
	}
	return nil, fmt.Errorf("oracle exhausted %d attempts: %w", l.maxAttempts, lastErr)
}
