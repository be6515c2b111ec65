// Package enums holds the string enums stored in Postgres enum columns and
// accepted on the API.
package enums

import (
	"fmt"
	"slices"
)

func isOneOf[T ~string](v T, allowed []T) bool {
	return slices.Contains(allowed, v)
}

// parseOneOf matches raw exactly; callers normalize case first.
func parseOneOf[T ~string](kind, raw string, allowed []T) (T, error) {
	if v := T(raw); slices.Contains(allowed, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
