package pagination

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC), ID: uuid.New()}
	got, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("ParseCursor() error = %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if c, err := ParseCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor should parse to nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("!!!"); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit {
		t.Fatalf("expected default limit")
	}
	if NormalizeLimit(500) != MaxLimit {
		t.Fatalf("expected limit clamp")
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffered limit")
	}
}

func TestPageMath(t *testing.T) {
	p := NormalizePage(0, 0)
	if p.Number != 1 || p.Size != DefaultPageSize {
		t.Fatalf("unexpected defaults %+v", p)
	}

	p = NormalizePage(3, 10)
	if p.Offset() != 20 {
		t.Fatalf("expected offset 20, got %d", p.Offset())
	}
	if p.TotalPages(21) != 3 {
		t.Fatalf("expected 3 pages, got %d", p.TotalPages(21))
	}
	if p.TotalPages(0) != 0 {
		t.Fatalf("expected 0 pages for empty result")
	}

	start, end := p.Slice(25)
	if start != 20 || end != 25 {
		t.Fatalf("expected [20,25), got [%d,%d)", start, end)
	}
	start, end = NormalizePage(9, 10).Slice(25)
	if start != 25 || end != 25 {
		t.Fatalf("expected empty tail window, got [%d,%d)", start, end)
	}

	if NormalizePage(1, 1000).Size != MaxPageSize {
		t.Fatalf("expected page size clamp")
	}
}

func TestHugePageNumbersStayInRange(t *testing.T) {
	p := NormalizePage(math.MaxInt, MaxPageSize)
	if p.Number != MaxPageNumber {
		t.Fatalf("expected page number clamp, got %d", p.Number)
	}
	if p.Offset() < 0 {
		t.Fatalf("offset overflowed: %d", p.Offset())
	}
	if start, end := p.Slice(10); start != 10 || end != 10 {
		t.Fatalf("expected empty window, got [%d,%d)", start, end)
	}

	raw := Page{Number: math.MaxInt/2 + 1, Size: 4}
	if start, end := raw.Slice(10); start != 10 || end != 10 {
		t.Fatalf("expected empty window for unnormalized page, got [%d,%d)", start, end)
	}
	if start, end := (Page{}).Slice(3); start != 3 || end != 3 {
		t.Fatalf("expected empty window for zero page, got [%d,%d)", start, end)
	}
}

func TestTrimReturnsNextCursorOnlyForFullPages(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
		{CreatedAt: base, ID: uuid.New()},
	}
	self := func(c Cursor) Cursor { return c }

	page, next := Trim(rows, 2, self)
	if len(page) != 2 || next == nil || next.ID != rows[1].ID {
		t.Fatalf("expected two rows and a cursor at the second, got %d %v", len(page), next)
	}
	page, next = Trim(rows[:2], 2, self)
	if len(page) != 2 || next != nil {
		t.Fatalf("exact page should not report a next cursor, got %v", next)
	}

	where, args := roundTrip(t, rows[1]).Before()
	if where == "" || len(args) != 3 || args[2] != rows[1].ID {
		t.Fatalf("unexpected predicate %q %v", where, args)
	}
}

func roundTrip(t *testing.T, c Cursor) Cursor {
	t.Helper()
	parsed, err := ParseCursor(EncodeCursor(c))
	if err != nil {
		t.Fatalf("ParseCursor() error = %v", err)
	}
	return *parsed
}
