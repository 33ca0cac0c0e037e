package schedule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shiragiku/toka/internal/toka/llm"
)

// Deletion is the resolver's answer: which rows of the snapshot the user
// asked to remove, and a human-readable rationale for showing to the user
// when nothing matched.
type Deletion struct {
	// Indices are positions in the snapshot the resolver was given.  They
	// are raw model output — pass them through ValidIndices before use.
	Indices []int
	// Reason explains the resolution, or why no rows were identified.
	Reason string
}

// Resolver matches free-text deletion requests against the current rows.
type Resolver struct {
	gw  *llm.Gateway
	now func() time.Time
}

// NewResolver returns a Resolver backed by gw.
func NewResolver(gw *llm.Gateway) *Resolver {
	return &Resolver{gw: gw, now: time.Now}
}

// deletionWire is the decoded model payload.  indexToDelete is the legacy
// single-target field kept for decode compatibility with earlier prompts.
type deletionWire struct {
	IndicesToDelete []int  `json:"indicesToDelete"`
	IndexToDelete   *int   `json:"indexToDelete"`
	Reason          string `json:"reason"`
}

const deletionFailedReason = "削除対象の解析に失敗しました。"

// ResolveDeletion identifies which of rows the user's text asks to delete.
//
// Ambiguity is tolerated: the model may return several candidate indices.
// When the model cannot decide, or its reply does not decode, the result is
// an empty index set with Reason set — never an error.  Only context
// cancellation is propagated.
func (r *Resolver) ResolveDeletion(ctx context.Context, userText string, rows []Record) (Deletion, error) {
	prompt := deletionPrompt(Today(r.now()), rows, userText)

	raw, err := generateJSON(ctx, r.gw, prompt, "deletion")
	if err != nil {
		if ctx.Err() != nil {
			return Deletion{}, ctx.Err()
		}
		slog.Warn("schedule: deletion resolution produced no usable reply", "err", err)
		return Deletion{Indices: []int{}, Reason: deletionFailedReason}, nil
	}

	if !conforms(deletionSchema, raw) {
		slog.Warn("schedule: deletion reply did not match the expected shape")
		return Deletion{Indices: []int{}, Reason: deletionFailedReason}, nil
	}

	var wire deletionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		slog.Warn("schedule: deletion reply did not decode", "err", err)
		return Deletion{Indices: []int{}, Reason: deletionFailedReason}, nil
	}

	indices := wire.IndicesToDelete
	if len(indices) == 0 && wire.IndexToDelete != nil {
		indices = []int{*wire.IndexToDelete}
	}
	if indices == nil {
		indices = []int{}
	}
	return Deletion{Indices: indices, Reason: wire.Reason}, nil
}
