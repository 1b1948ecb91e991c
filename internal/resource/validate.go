package resource

import (
	"fmt"
	"strings"
)

// ValidatePayload checks a write body against a payload schema and returns
// structured field-level issues. Unknown keys are rejected; reads stay
// forward-compatible, writes do not.
func ValidatePayload(schema []FieldSpec, body map[string]any) []ErrorDetail {
	known := make(map[string]FieldSpec, len(schema))
	for _, spec := range schema {
		known[spec.Name] = spec
	}

	var errs []ErrorDetail

	for key := range body {
		if _, ok := known[key]; !ok {
			errs = append(errs, ErrorDetail{
				Field:   key,
				Rule:    "unknown",
				Message: fmt.Sprintf("Unknown field: %s", key),
			})
		}
	}

	for _, spec := range schema {
		val, present := body[spec.Name]
		if !present || val == nil {
			if spec.Required {
				errs = append(errs, ErrorDetail{
					Field:   spec.Name,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", spec.Name),
				})
			}
			continue
		}
		if detail := checkType(spec, val); detail != nil {
			errs = append(errs, *detail)
		}
	}

	return errs
}

func checkType(spec FieldSpec, val any) *ErrorDetail {
	fail := func(rule, format string, args ...any) *ErrorDetail {
		return &ErrorDetail{Field: spec.Name, Rule: rule, Message: fmt.Sprintf(format, args...)}
	}

	switch spec.Type {
	case TypeString, TypeRelation:
		if _, ok := val.(string); !ok {
			return fail("type", "%s must be a string", spec.Name)
		}
	case TypeNumber:
		switch val.(type) {
		case float64, int, int64:
		default:
			return fail("type", "%s must be a number", spec.Name)
		}
	case TypeBoolean:
		if _, ok := val.(bool); !ok {
			return fail("type", "%s must be a boolean", spec.Name)
		}
	case TypeDate:
		s, ok := val.(string)
		if !ok {
			return fail("type", "%s must be a date string", spec.Name)
		}
		if _, err := parseDate(s); err != nil {
			return fail("format", "%s must be a date", spec.Name)
		}
	case TypeEnum:
		s, ok := val.(string)
		if !ok {
			return fail("type", "%s must be a string", spec.Name)
		}
		for _, allowed := range spec.Enum {
			if s == allowed {
				return nil
			}
		}
		return fail("enum", "%s must be one of %s", spec.Name, strings.Join(spec.Enum, ", "))
	case TypeText:
		m, ok := val.(map[string]any)
		if !ok {
			return fail("type", "%s must be a map of language to string", spec.Name)
		}
		for lang, v := range m {
			if _, ok := v.(string); !ok {
				return fail("type", "%s.%s must be a string", spec.Name, lang)
			}
		}
	case TypeStringList:
		items, ok := val.([]any)
		if !ok {
			return fail("type", "%s must be a list of strings", spec.Name)
		}
		for i, item := range items {
			if _, ok := item.(string); !ok {
				return fail("type", "%s[%d] must be a string", spec.Name, i)
			}
		}
	case TypeFiles:
		items, ok := val.([]any)
		if !ok {
			return fail("type", "%s must be a list of file references", spec.Name)
		}
		for i, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				return fail("type", "%s[%d] must be an object", spec.Name, i)
			}
			_, hasID := entry["id"].(string)
			_, hasData := entry["data"].(string)
			if !hasID && !hasData {
				return fail("format", "%s[%d] needs either an id or upload data", spec.Name, i)
			}
		}
	}
	return nil
}
