package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gemini "google.golang.org/genai"

	"github.com/shiragiku/toka/common/redact"
)

// GeminiConfig configures the Gemini-backed provider.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API.
	APIKey string
}

// geminiProvider implements Provider using the official Gemini SDK.
type geminiProvider struct {
	client *gemini.Client
	apiKey string
}

// NewGemini returns a Provider backed by the Gemini API.  The underlying
// client holds no mutable state and the returned provider is safe for
// concurrent use; construct it once at startup and share it.
func NewGemini(ctx context.Context, cfg GeminiConfig) (Provider, error) {
	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &geminiProvider{client: client, apiKey: cfg.APIKey}, nil
}

// GenerateText sends prompt to the named model and returns the raw reply text.
func (p *geminiProvider) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, model, gemini.Text(prompt), nil)
	if err != nil {
		// Transport errors can echo the request URL, key included.
		return "", classify(err, p.apiKey)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("llm: model %s returned an empty reply", model)
	}
	return text, nil
}

// classify maps an SDK transport error onto the gateway's failure taxonomy.
// Rate-limit and credential errors become the hard sentinels; everything
// else passes through wrapped and is treated as soft by the gateway.
// apiKey is scrubbed from every message before it can reach a log line.
func classify(err error, apiKey string) error {
	var apiErr gemini.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %s", ErrRateLimited, redact.String(apiErr.Message, apiKey))
		case apiErr.Code == 401 || apiErr.Code == 403 || apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED":
			return fmt.Errorf("%w: %s", ErrAuth, redact.String(apiErr.Message, apiKey))
		}
		return fmt.Errorf("llm: generate: %s", redact.String(err.Error(), apiKey))
	}

	// Some transports surface untyped errors; fall back to message markers
	// so a quota hit still stops the fallback chain.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted"):
		return fmt.Errorf("%w: %s", ErrRateLimited, redact.String(err.Error(), apiKey))
	case strings.Contains(msg, "api key not valid") || strings.Contains(msg, "unauthenticated"):
		return fmt.Errorf("%w: %s", ErrAuth, redact.String(err.Error(), apiKey))
	}
	return fmt.Errorf("llm: generate: %s", redact.String(err.Error(), apiKey))
}
