// Package llm provides the text-generation gateway for toka.
//
// The gateway sits between the schedule pipeline and the upstream
// generation service.  Its sole responsibility is mediation: send a fully
// formed prompt to a prioritized chain of models, normalize the raw reply
// (code-fence unwrapping, whitespace trimming) and hand the remainder to a
// caller-supplied parser.  The first model whose reply parses wins.
//
// Failure classification is typed, not string-matched: providers map
// transport-specific error codes onto ErrRateLimited / ErrAuth so the
// gateway can distinguish "try the next model" from "stop immediately".
package llm

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by a Provider when the upstream generation API
// reports a rate-limit or quota-exhaustion condition (e.g. HTTP 429,
// RESOURCE_EXHAUSTED).  The gateway aborts the model fallback chain
// immediately: every other model in the chain shares the same quota.
var ErrRateLimited = errors.New("llm: upstream rate limit exceeded")

// ErrAuth is returned by a Provider when the upstream API rejects the
// configured credential (invalid or revoked API key).  Like ErrRateLimited
// it aborts the fallback chain — a bad key fails identically on every model.
var ErrAuth = errors.New("llm: invalid or rejected credential")

// ErrExhausted is returned by the Gateway when every model in the chain was
// tried and none produced a parseable reply.  Call sites treat this as
// "nothing found" and substitute their own empty result; it is exported so
// they can log the distinction.
var ErrExhausted = errors.New("llm: all models exhausted without a parseable reply")

// Provider is a single upstream text-generation transport.
//
// Implementations must be safe for concurrent use.  GenerateText returns the
// raw reply text for one prompt against one named model; it performs no
// retries and no output normalization — both are the Gateway's job.
type Provider interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// Fatal reports whether err is a hard generation failure: one that must
// abort the model fallback chain instead of moving on to the next model.
func Fatal(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuth)
}
