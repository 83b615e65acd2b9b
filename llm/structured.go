package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Structured is implemented by types decoded from model output.
type Structured interface {
	// Validate validates the structured output
	Validate() error
}

// ExtractJSON pulls the outermost JSON object out of free-form model output.
// Models routinely wrap JSON in markdown fences or prose; everything outside
// the first '{' and the last '}' is discarded.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", NewLLMError("", ErrorTypeJSONParsingError, "no JSON object found in response")
	}
	return s[start : end+1], nil
}

// ParseStructured decodes model output into T and validates it. T may be a
// struct or a pointer to a struct.
func ParseStructured[T Structured](raw string) (T, error) {
	var zero T

	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return zero, err
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	wantPtr := typ.Kind() == reflect.Ptr
	if wantPtr {
		typ = typ.Elem()
	}

	ptr := reflect.New(typ)
	if err := json.Unmarshal([]byte(jsonStr), ptr.Interface()); err != nil {
		return zero, NewLLMErrorWithCause("", ErrorTypeJSONParsingError, "json parsing error", err)
	}

	var result T
	if wantPtr {
		result = ptr.Interface().(T)
	} else {
		result = ptr.Elem().Interface().(T)
	}

	if err := result.Validate(); err != nil {
		return result, fmt.Errorf("validation failed: %w", err)
	}
	return result, nil
}
