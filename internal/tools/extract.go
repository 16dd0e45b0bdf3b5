package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is a tool invocation extracted from model output.
type Call struct {
	Name   string
	Params map[string]any
}

var (
	useToolRe = regexp.MustCompile(`(?s)<use_tool\s+name="([^"]+)"\s*>(.*?)</use_tool>`)
	paramRe   = regexp.MustCompile(`(?s)<param\s+name="([^"]+)"\s*>(.*?)</param>`)
)

// ExtractCall finds the first tool call in text. The XML form is tried first,
// then the JSON form; both may appear anywhere in the text, including inside
// fenced code blocks. Returns nil when the text contains no well-formed call.
func ExtractCall(text string) *Call {
	if c := extractXML(text); c != nil {
		return c
	}
	return extractJSON(text)
}

func extractXML(text string) *Call {
	m := useToolRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	params := map[string]any{}
	for _, pm := range paramRe.FindAllStringSubmatch(m[2], -1) {
		// Duplicate keys take the last value.
		params[pm[1]] = strings.TrimSpace(pm[2])
	}
	return &Call{Name: m[1], Params: params}
}

// extractJSON scans for the first balanced JSON object carrying a non-empty
// string "tool" key; "params", when present, must be an object, and a
// missing "params" yields empty params.
func extractJSON(text string) *Call {
	for start := 0; start < len(text); {
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			return nil
		}
		open += start
		obj, end := balancedObject(text[open:])
		if obj == "" {
			start = open + 1
			continue
		}
		var parsed struct {
			Tool   string         `json:"tool"`
			Params map[string]any `json:"params"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil && parsed.Tool != "" {
			if parsed.Params == nil {
				parsed.Params = map[string]any{}
			}
			return &Call{Name: parsed.Tool, Params: parsed.Params}
		}
		start = open + end
		if end == 0 {
			start = open + 1
		}
	}
	return nil
}

// balancedObject returns the outermost brace-balanced prefix of s (which must
// start with '{') and its length, honoring JSON strings and escapes. Returns
// "" when the braces never balance.
func balancedObject(s string) (string, int) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], i + 1
			}
		}
	}
	return "", 0
}

var toolObjectRe = regexp.MustCompile(`\{\s*"tool"`)

// LooksLikeToolAttempt reports whether text resembles a tool call that failed
// to parse, to distinguish a malformed attempt (retryable) from a final
// answer. An opened XML tag or a JSON object starting with a quoted "tool"
// key is a strong signal; otherwise quoted "tool" and "params" key tokens in
// proximity count as a weak one.
func LooksLikeToolAttempt(text string) bool {
	if strings.Contains(text, "<use_tool") {
		return true
	}
	if toolObjectRe.MatchString(text) {
		return true
	}
	toolIdx := strings.Index(text, `"tool"`)
	paramsIdx := strings.Index(text, `"params"`)
	if toolIdx < 0 || paramsIdx < 0 {
		return false
	}
	dist := paramsIdx - toolIdx
	if dist < 0 {
		dist = -dist
	}
	return dist < 400
}
