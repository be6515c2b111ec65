package types

import (
	"errors"
	"fmt"
	"strings"
)

var errCompositeFieldCount = errors.New("composite: unexpected field count")

// compositeWriter renders a Postgres row literal such as ("a",NULL,"b").
type compositeWriter struct {
	fields []string
}

func (w *compositeWriter) text(value string) *compositeWriter {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('"')
	for _, r := range value {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	w.fields = append(w.fields, b.String())
	return w
}

func (w *compositeWriter) nullable(value *string) *compositeWriter {
	if value == nil {
		w.fields = append(w.fields, "")
		return w
	}
	return w.text(*value)
}

func (w *compositeWriter) String() string {
	return "(" + strings.Join(w.fields, ",") + ")"
}

// compositeField is one parsed column. Postgres writes NULL as an empty
// unquoted field, so quoted tells "" apart from NULL.
type compositeField struct {
	value  string
	quoted bool
}

func (f compositeField) null() bool {
	return !f.quoted && (f.value == "" || strings.EqualFold(f.value, "NULL"))
}

func (f compositeField) ptr() *string {
	if f.null() {
		return nil
	}
	v := f.value
	return &v
}

func readComposite(raw string, expected int) ([]compositeField, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '(' || raw[len(raw)-1] != ')' {
		return nil, fmt.Errorf("composite: invalid format %q", raw)
	}
	body := raw[1 : len(raw)-1]

	var (
		fields   []compositeField
		current  strings.Builder
		quoted   bool
		inQuotes bool
	)
	flush := func() {
		fields = append(fields, compositeField{value: current.String(), quoted: quoted})
		current.Reset()
		quoted = false
	}

	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\\' && i+1 < len(body):
			i++
			current.WriteByte(body[i])
		case ch == '"' && inQuotes && i+1 < len(body) && body[i+1] == '"':
			i++
			current.WriteByte('"')
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case ch == ',' && !inQuotes:
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()

	if expected > 0 && len(fields) != expected {
		return nil, fmt.Errorf("%w: got %d expected %d", errCompositeFieldCount, len(fields), expected)
	}
	return fields, nil
}
