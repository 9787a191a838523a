package tool

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"askbot/internal/domain"
)

// CoerceInput validates a raw input map against a tool's JSON Schema and
// returns a copy with values coerced to the declared types. The input was
// extracted from free model text, so lenient coercion ("5" → 5, 5.0 → 5)
// is applied; a value that cannot be coerced, or a missing required key,
// is a *domain.SchemaError.
func CoerceInput(toolName string, schema, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}

	for _, key := range requiredKeys(schema) {
		if _, ok := input[key]; !ok {
			return nil, &domain.SchemaError{Tool: toolName, Reason: fmt.Sprintf("missing required parameter %q", key)}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	coerced := make(map[string]any, len(input))
	for key, value := range input {
		prop, ok := props[key].(map[string]any)
		if !ok {
			// Unknown keys pass through untouched; tools ignore them.
			coerced[key] = value
			continue
		}
		typ, _ := prop["type"].(string)
		cv, err := coerceValue(value, typ)
		if err != nil {
			return nil, &domain.SchemaError{Tool: toolName, Reason: fmt.Sprintf("parameter %q: %v", key, err)}
		}
		coerced[key] = cv
	}
	return coerced, nil
}

// DecodeInput decodes a coerced input map into a tool's typed input
// struct. Decode failures are schema errors, not runtime tool errors.
func DecodeInput(toolName string, input map[string]any, out any) error {
	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return &domain.SchemaError{Tool: toolName, Reason: err.Error()}
	}
	if err := decoder.Decode(input); err != nil {
		return &domain.SchemaError{Tool: toolName, Reason: err.Error()}
	}
	return nil
}

func requiredKeys(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		keys := make([]string, 0, len(req))
		for _, k := range req {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}

func coerceValue(value any, typ string) (any, error) {
	switch typ {
	case "", "object", "array":
		return value, nil
	case "string":
		switch v := value.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		default:
			return nil, fmt.Errorf("expected string, got %T", value)
		}
	case "integer":
		switch v := value.(type) {
		case int:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int(v), nil
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", v)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", value)
		}
	case "number":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}
	default:
		return value, nil
	}
}
