package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

// queryValue parses a single query parameter. ok is false when the
// parameter is absent or blank.
func queryValue[T any](r *http.Request, key, want string, parse func(string) (T, error)) (value T, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return value, false, nil
	}
	value, err = parse(raw)
	if err != nil {
		return value, false, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be "+want).
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	return value, true, nil
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, ok, err := queryValue(r, key, "numeric", strconv.Atoi)
	switch {
	case err != nil:
		return 0, err
	case !ok:
		return defaultVal, nil
	case value < min || value > max:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryFloat returns nil when the parameter is absent.
func ParseQueryFloat(r *http.Request, key string) (*float64, error) {
	value, ok, err := queryValue(r, key, "numeric", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
	if err != nil || !ok {
		return nil, err
	}
	return &value, nil
}

func ParseQueryBool(r *http.Request, key string) (bool, error) {
	value, _, err := queryValue(r, key, "a boolean", strconv.ParseBool)
	return value, err
}

// ParseQueryList splits a comma separated parameter, dropping blanks.
func ParseQueryList(r *http.Request, key string) []string {
	var out []string
	for part := range strings.SplitSeq(r.URL.Query().Get(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
