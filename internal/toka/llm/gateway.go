package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultModels is the model fallback chain used when none is configured.
// The current policy is a single flash-tier model; the chain mechanism is
// kept so an operator can add fallbacks without a code change.
var DefaultModels = []string{"gemini-2.5-flash"}

// ParseFunc interprets one normalized model reply.  It returns an error when
// the reply cannot be decoded into the expected shape, in which case the
// gateway moves on to the next model in the chain.
type ParseFunc func(raw []byte) error

// Gateway runs one prompt through a prioritized model chain.
//
// Per invocation each model is tried at most once, with no backoff: the
// fallback chain is the retry mechanism.  Parsing failures and transient
// transport errors advance to the next model; rate-limit and credential
// errors abort immediately (see Fatal).
type Gateway struct {
	provider Provider
	models   []string
}

// NewGateway returns a Gateway that tries models in order against provider.
// When models is empty, DefaultModels is used.
func NewGateway(provider Provider, models []string) *Gateway {
	if len(models) == 0 {
		models = DefaultModels
	}
	return &Gateway{provider: provider, models: models}
}

// Generate sends prompt to the model chain and applies parse to the first
// reply obtained.  task is a short label used only for diagnostics.
//
// The reply is normalized before parsing: optional ``` or ```json fences are
// stripped and surrounding whitespace is trimmed.  The first reply that
// parse accepts wins.  When a model returns a hard failure the chain stops
// and that error is returned; when every model fails softly the result is
// ErrExhausted.
func (g *Gateway) Generate(ctx context.Context, prompt string, parse ParseFunc, task string) error {
	var lastErr error
	for _, model := range g.models {
		raw, err := g.provider.GenerateText(ctx, model, prompt)
		if err != nil {
			if Fatal(err) {
				slog.Error("llm: hard generation failure, aborting model chain",
					"task", task, "model", model, "err", err)
				return err
			}
			slog.Warn("llm: generation failed, trying next model",
				"task", task, "model", model, "err", err)
			lastErr = err
			continue
		}

		cleaned := UnwrapFences(raw)
		if err := parse([]byte(cleaned)); err != nil {
			slog.Warn("llm: reply did not parse, trying next model",
				"task", task, "model", model, "err", err)
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w (task %s): %w", ErrExhausted, task, lastErr)
	}
	return fmt.Errorf("%w (task %s)", ErrExhausted, task)
}

// UnwrapFences removes an optional Markdown code fence wrapping around s and
// trims surrounding whitespace.  Both ```json and bare ``` fences are
// recognized; content without fences is returned trimmed and otherwise
// byte-identical.
func UnwrapFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
