package store

import (
	"fmt"
	"strings"
)

// nullableInt converts an optional position to a driver value.
func nullableInt(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// checkReadOnly accepts a single SELECT or WITH statement. A trailing
// semicolon is allowed.
func checkReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	if trimmed == "" {
		return fmt.Errorf("query is empty")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("only a single statement is allowed")
	}
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return fmt.Errorf("only SELECT and WITH queries are allowed")
}

// valueToString renders a scanned column as an entity id.
func valueToString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}
