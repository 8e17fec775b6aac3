package priorartsearch

import (
	"encoding/json"
	"errors"
	"strings"
)

type payloadValidator interface {
	Validate() error
}

// decodePayload turns raw model output into out. Every failure, whether
// empty text, malformed JSON, or a payload that fails Validate, is returned
// as a *DecodeError.
func decodePayload(target, raw string, out any) error {
	clean := extractJSON(stripCodeFences(raw))
	if clean == "" {
		return &DecodeError{Target: target, Raw: raw, Err: errors.New("empty response")}
	}
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return &DecodeError{Target: target, Raw: raw, Err: err}
	}
	if v, ok := out.(payloadValidator); ok {
		if err := v.Validate(); err != nil {
			return &DecodeError{Target: target, Raw: raw, Err: err}
		}
	}
	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

// extractJSON trims prose around the outermost object or array.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}
