package observability

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sensitiveKeys covers generic credential shapes, matched as substrings so
// header forms like "X-Api-Key" are caught too.
var sensitiveKeys = []string{
	"api_key", "apikey", "x-api-key", "authorization", "auth", "token",
	"access_token", "refresh_token", "password", "secret", "bearer",
	"exa_api_key",
}

// sensitiveExactKeys are redacted only on exact match: MCP server configs
// carry credentials inside whole "env" and "headers" maps.
var sensitiveExactKeys = []string{"env", "headers"}

// maxLoggedValueLen caps string values when logging tool arguments: file
// contents and page bodies routinely ride along in params and would drown
// the log.
const maxLoggedValueLen = 256

// RedactJSON takes a JSON payload and redacts sensitive values based on
// common key names.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	return transformJSON(raw, 0)
}

// RedactToolArgs prepares a tool-call parameter payload for logging: secret
// keys are redacted and long string values (file contents, fetched pages)
// are clipped to maxLoggedValueLen.
func RedactToolArgs(raw json.RawMessage) json.RawMessage {
	return transformJSON(raw, maxLoggedValueLen)
}

func transformJSON(raw json.RawMessage, clip int) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	redacted := redactValue(v, clip)
	b, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return b
}

func redactValue(v any, clip int) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if isSensitiveKey(k) {
				val[k] = "[REDACTED]"
			} else {
				val[k] = redactValue(vv, clip)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(val[i], clip)
		}
		return val
	case string:
		if clip > 0 && len(val) > clip {
			return fmt.Sprintf("%s... [%d chars clipped]", val[:clip], len(val)-clip)
		}
		return val
	default:
		return v
	}
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveExactKeys {
		if low == s {
			return true
		}
	}
	for _, s := range sensitiveKeys {
		// contains common header forms
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}
