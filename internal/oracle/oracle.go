package oracle

import (
	"context"
	"encoding/json"
	"strings"
)

// Oracle is the cognition boundary. Implementations must be assumed
// unreliable; callers degrade rather than abort when one fails.
type Oracle interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Request carries one reasoning task to the oracle.
type Request struct {
	Agent   string // agent name, used for provider routing
	Stage   string // reasoning stage or task identifier
	System  string // system framing for the call
	Context string // assembled situational context
}

// Action is a tool invocation the oracle asks the agent to perform.
type Action struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Result is the structured output of one oracle call.
type Result struct {
	Content      string            `json:"content"`
	Confidence   float64           `json:"confidence"`
	Evidence     []string          `json:"evidence,omitempty"`
	Alternatives []string          `json:"alternatives,omitempty"`
	Action       *Action           `json:"action,omitempty"`
	Appearance   map[string]string `json:"appearance,omitempty"`
	Degraded     bool              `json:"-"`
}

// DegradedConfidence is assigned when oracle output cannot be parsed as
// structured JSON and is kept as a plain thought instead.
const DegradedConfidence = 0.3

// ParseResult interprets raw oracle text. Valid JSON (optionally wrapped in
// a markdown fence) yields a structured result; anything else is degraded
// to a low-confidence plain-text thought.
func ParseResult(raw string) *Result {
	text := strings.TrimSpace(raw)
	candidate := stripFence(text)

	var res Result
	if err := json.Unmarshal([]byte(candidate), &res); err == nil && res.Content != "" {
		if res.Confidence <= 0 || res.Confidence > 1 {
			res.Confidence = DegradedConfidence
		}
		return &res
	}

	return &Result{
		Content:    text,
		Confidence: DegradedConfidence,
		Degraded:   true,
	}
}

// stripFence removes a surrounding ```json ... ``` block if present.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}
