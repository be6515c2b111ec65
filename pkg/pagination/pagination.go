// Package pagination holds the keyset cursors used by inbox and booking
// listings and the offset pages used by station search.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) position of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ErrInvalidCursor wraps every cursor decoding failure.
var ErrInvalidCursor = errors.New("invalid cursor")

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer asks for one extra row so a full page knows whether a
// next page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Before is the keyset predicate for rows ordered created_at DESC, id DESC.
func (c Cursor) Before() (string, []any) {
	at := c.CreatedAt.UTC()
	return "(created_at < ? OR (created_at = ? AND id < ?))", []any{at, at, c.ID}
}

// Trim cuts a buffered result down to limit rows and returns the cursor for
// the next page, or nil on the last page.
func Trim[T any](rows []T, limit int, position func(T) Cursor) ([]T, *Cursor) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	rows = rows[:size]
	next := position(rows[size-1])
	return rows, &next
}

// EncodeCursor renders a cursor safe for use in a query string.
func EncodeCursor(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a cursor. A blank value means the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	stamp, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: at, ID: uid}, nil
}

const (
	// DefaultPageSize is the page size used by offset-paginated listings.
	DefaultPageSize = 20
	// MaxPageSize caps offset-paginated listings.
	MaxPageSize = 100
)

// Page captures offset pagination inputs after normalization.
type Page struct {
	Number int
	Size   int
}

// MaxPageNumber keeps Offset within int for every allowed page size.
const MaxPageNumber = math.MaxInt/MaxPageSize + 1

// NormalizePage applies defaults to page numbers and sizes. Sizes above
// MaxPageSize and numbers above MaxPageNumber are clamped rather than rejected.
func NormalizePage(number, size int) Page {
	if number <= 0 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return Page{Number: min(number, MaxPageNumber), Size: min(size, MaxPageSize)}
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages returns the page count needed to hold total rows.
func (p Page) TotalPages(total int) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return (total + p.Size - 1) / p.Size
}

// Slice returns the window of n items covered by this page as [start, end).
// Pages past the end, or built without NormalizePage, yield an empty window.
func (p Page) Slice(n int) (int, int) {
	if p.Number <= 0 || p.Size <= 0 || p.Number-1 > (n-1)/p.Size {
		return n, n
	}
	start := p.Offset()
	return start, start + min(p.Size, n-start)
}
