package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiragiku/toka/internal/toka/llm"
)

// Extractor turns free-form user text into structured schedule records.
type Extractor struct {
	gw  *llm.Gateway
	now func() time.Time
}

// NewExtractor returns an Extractor backed by gw.
func NewExtractor(gw *llm.Gateway) *Extractor {
	return &Extractor{gw: gw, now: time.Now}
}

// Extract analyzes userText and returns the schedule records it mentions.
//
// The result is never nil: input with no schedule content, a model reply
// whose shape is wrong, and generation failure all yield an empty slice.
// Only context cancellation is reported as an error — from the caller's
// point of view extraction either finds records or finds nothing.
func (e *Extractor) Extract(ctx context.Context, userText string) ([]Record, error) {
	now := e.now()
	prompt := extractPrompt(Today(now), Tomorrow(now), userText)

	raw, err := generateJSON(ctx, e.gw, prompt, "extract")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("schedule: extraction produced no usable reply", "err", err)
		return []Record{}, nil
	}

	// A reply that is valid JSON but not a record array (e.g. a lone object
	// or a prose string the model wrapped in quotes) counts as "nothing
	// found", not as a failure.
	if !conforms(recordsSchema, raw) {
		slog.Warn("schedule: extraction reply did not match the record-array shape")
		return []Record{}, nil
	}

	var decoded []Record
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Warn("schedule: extraction reply did not decode", "err", err)
		return []Record{}, nil
	}

	records := make([]Record, 0, len(decoded))
	for _, r := range decoded {
		if !r.Valid() {
			continue
		}
		records = append(records, r.Normalize())
	}
	return records, nil
}

// generateJSON runs prompt through the gateway, requiring only that the
// normalized reply is well-formed JSON.  Shape validation happens at the
// call site: a syntactically valid but wrongly shaped reply must not burn
// the remaining models in the chain.
func generateJSON(ctx context.Context, gw *llm.Gateway, prompt, task string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := gw.Generate(ctx, prompt, func(b []byte) error {
		if !json.Valid(b) {
			return fmt.Errorf("schedule: reply is not valid JSON")
		}
		raw = append(json.RawMessage(nil), b...)
		return nil
	}, task)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
