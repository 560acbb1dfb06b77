package agent

import (
	"encoding/json"
	"sort"
	"strings"

	"kite-agent-bridge/internal/types"
)

var tokenKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"public_token":  true,
	"request_token": true,
	"api_secret":    true,
	"enctoken":      true,
}

// secrets collects token values seen during one turn so the final answer can
// be scrubbed of them.
type secrets map[string]struct{}

// observe records every token value found in raw JSON.
func (s secrets) observe(raw json.RawMessage) {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return
	}
	walkTokens(v, func(val string) string {
		s[val] = struct{}{}
		return val
	})
}

// scrub masks every recorded secret in text, longest first.
func (s secrets) scrub(text string) string {
	vals := make([]string, 0, len(s))
	for v := range s {
		if len(v) >= 6 {
			vals = append(vals, v)
		}
	}
	sort.Slice(vals, func(i, j int) bool { return len(vals[i]) > len(vals[j]) })
	for _, v := range vals {
		text = strings.ReplaceAll(text, v, types.MaskSecret(v))
	}
	return text
}

// redactEnvelope renders env for a decider with token fields masked and
// records the raw values.
func (s secrets) redactEnvelope(env types.Envelope) string {
	if len(env.Data) == 0 {
		return env.String()
	}
	var v any
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return env.String()
	}
	v = walkTokens(v, func(val string) string {
		s[val] = struct{}{}
		return types.MaskSecret(val)
	})
	if b, err := json.Marshal(v); err == nil {
		env.Data = b
	}
	return env.String()
}

// walkTokens applies fn to every non-empty string stored under a token key
// and returns the rewritten value.
func walkTokens(v any, fn func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok && s != "" && tokenKeys[strings.ToLower(k)] {
				t[k] = fn(s)
				continue
			}
			t[k] = walkTokens(val, fn)
		}
		return t
	case []any:
		for i := range t {
			t[i] = walkTokens(t[i], fn)
		}
		return t
	default:
		return v
	}
}
