package schedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shiragiku/toka/internal/toka/llm"
)

// Scanner flags rows whose due date has passed so they can be purged.
type Scanner struct {
	gw *llm.Gateway
}

// NewScanner returns a Scanner backed by gw.
func NewScanner(gw *llm.Gateway) *Scanner {
	return &Scanner{gw: gw}
}

type expiryWire struct {
	ExpiredIndices []int `json:"expiredIndices"`
}

// ScanExpired returns the indices of rows whose due date is today or
// earlier.  today is interpreted on its calendar date in the reference
// timezone.
//
// The scan is deliberately biased toward false negatives.  The prompt
// instructs the model to only flag machine-parseable past-or-today dates,
// and every returned index is additionally checked here: a row whose due
// field does not parse as YYYY-MM-DD, or parses to a future date, is
// dropped no matter what the model said.  This is housekeeping, not a
// correctness-critical operation — any failure yields an empty set, never
// an error (context cancellation excepted).
func (s *Scanner) ScanExpired(ctx context.Context, rows []Record, today time.Time) ([]int, error) {
	if len(rows) == 0 {
		return []int{}, nil
	}

	prompt := expiryPrompt(Today(today), rows)

	raw, err := generateJSON(ctx, s.gw, prompt, "expiry")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("schedule: expiry scan produced no usable reply", "err", err)
		return []int{}, nil
	}

	if !conforms(expirySchema, raw) {
		slog.Warn("schedule: expiry reply did not match the expected shape")
		return []int{}, nil
	}

	var wire expiryWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		slog.Warn("schedule: expiry reply did not decode", "err", err)
		return []int{}, nil
	}

	cutoff, err := time.Parse(DueLayout, Today(today))
	if err != nil {
		return []int{}, nil
	}

	expired := make([]int, 0, len(wire.ExpiredIndices))
	for _, idx := range wire.ExpiredIndices {
		if idx < 0 || idx >= len(rows) {
			continue
		}
		due, ok := rows[idx].DueDate()
		if !ok || due.After(cutoff) {
			// Unparseable or future due dates never expire, even when the
			// model claims otherwise.
			continue
		}
		expired = append(expired, idx)
	}
	return expired, nil
}
