// Package stages implements C3, the six stage workers as
// interfaces.StageHandler implementations registered with the job queue's
// worker pool (C1).
package stages

import "github.com/bobmcallan/coursegen/internal/pipeerr"

// fieldString reads a required string field from a JobPayload.Fields map,
// classifying a missing or wrong-typed field as VALIDATION_ERROR since it
// means the job was enqueued with a malformed payload.
func fieldString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", pipeerr.NewValidationError("job payload missing required field " + key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", pipeerr.NewValidationError("job payload field " + key + " must be a non-empty string")
	}
	return s, nil
}

// fieldStringOptional reads an optional string field, returning "" if absent.
func fieldStringOptional(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// fieldInt reads a numeric field. JSON-decoded payloads carry numbers as
// float64, so both that and a native int are accepted.
func fieldInt(fields map[string]any, key string) int {
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// toStringSlice normalizes a field that may be []string (set in-process) or
// []interface{} (after a JSON round trip through storage) into []string.
func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
