// Package redact strips sensitive values from strings before they leave the
// process boundary.
//
// # Threat model
//
// Secrets (the Gemini API key, the Discord bot token, service-account key
// material) must never appear in:
//   - Log lines emitted by toka
//   - Error messages surfaced to Discord or the admin panel
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms.  It is NOT a substitute
// for keeping secrets out of log call-sites in the first place.
package redact

import (
	"strings"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(errMessage, apiKey, botToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}
