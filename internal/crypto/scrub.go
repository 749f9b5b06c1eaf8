package crypto

import "strings"

// ScrubContext returns a copy of a structured error context with any entry
// whose key names a secret replaced by a placeholder. Keys containing
// "key" or "secret" (case-insensitive) are scrubbed.
func ScrubContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
