package schedule

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape schemas for the three model payloads.  A reply that is valid JSON
// but fails its schema is discarded as "nothing found" rather than surfaced
// as an error, so the schemas are deliberately permissive: they pin down
// types and required fields, nothing more.
const (
	recordsSchemaSrc = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["task"],
			"properties": {
				"type": {"type": "string"},
				"task": {"type": "string"},
				"due":  {"type": "string"}
			}
		}
	}`

	deletionSchemaSrc = `{
		"type": "object",
		"properties": {
			"indicesToDelete": {"type": "array", "items": {"type": "integer", "minimum": 0}},
			"indexToDelete":   {"type": "integer", "minimum": 0},
			"reason":          {"type": "string"}
		}
	}`

	expirySchemaSrc = `{
		"type": "object",
		"properties": {
			"expiredIndices": {"type": "array", "items": {"type": "integer", "minimum": 0}}
		}
	}`
)

var (
	recordsSchema  = jsonschema.MustCompileString("records.json", recordsSchemaSrc)
	deletionSchema = jsonschema.MustCompileString("deletion.json", deletionSchemaSrc)
	expirySchema   = jsonschema.MustCompileString("expiry.json", expirySchemaSrc)
)

// conforms reports whether raw JSON validates against schema.
func conforms(schema *jsonschema.Schema, raw []byte) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return schema.Validate(v) == nil
}
