package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input where the named keys are masked.
// Nested maps are walked; key matching ignores case.
func MaskFields(input map[string]any, fields ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		sensitive[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		if _, ok := sensitive[strings.ToLower(trimmed)]; ok {
			out[trimmed] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmed] = MaskFields(nested, fields...)
			continue
		}
		out[trimmed] = value
	}
	return out
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case []string:
		masked := make([]string, 0, len(cast))
		for _, item := range cast {
			masked = append(masked, MaskSecret(item))
		}
		return masked
	default:
		return maskToken
	}
}
