package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	conflicts := []Code{CodeConflict, CodeChargerUnavailable, CodeWindowConflict, CodeIdempotency}
	for _, code := range conflicts {
		if got := MetadataFor(code).HTTPStatus; got != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", code, got)
		}
	}

	for _, code := range []Code{CodeInvalidTransition, CodeStateConflict} {
		if got := MetadataFor(code).HTTPStatus; got != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", code, got)
		}
	}

	retryable := map[Code]bool{CodeInternal: true, CodeServiceUnavailable: true}
	for code := range metadataByCode {
		meta := MetadataFor(code)
		if meta.Retryable != retryable[code] {
			t.Fatalf("%s: retryable = %v", code, meta.Retryable)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("%s: missing public message", code)
		}
	}

	if meta := MetadataFor(CodeInternal); meta.EchoMessage || meta.DetailsAllowed {
		t.Fatalf("internal errors must not leak messages or details: %+v", meta)
	}
	if got := MetadataFor("SOMETHING_UNKNOWN").HTTPStatus; got != http.StatusInternalServerError {
		t.Fatalf("expected unknown code to map to 500, got %d", got)
	}
}

func TestErrorFormatting(t *testing.T) {
	err := Newf(CodeValidation, "rating must be between %d and %d", 1, 5)
	if err.Error() != "VALIDATION_ERROR: rating must be between 1 and 5" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	cause := stdErrors.New("connection refused")
	wrapped := Wrap(CodeServiceUnavailable, cause, "guard unavailable")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("wrap lost its cause")
	}
	if wrapped.Error() != "SERVICE_UNAVAILABLE: guard unavailable: connection refused" {
		t.Fatalf("unexpected wrapped message %q", wrapped.Error())
	}

	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Code() != CodeInternal || nilErr.WithDetails("x") != nil {
		t.Fatal("nil receivers should be safe")
	}
}

func TestAsFindsOutermostTypedError(t *testing.T) {
	inner := New(CodeNotFound, "charger missing").WithDetails(map[string]any{"charger_id": "c-1"})
	outer := Wrap(CodeChargerUnavailable, fmt.Errorf("lookup: %w", inner), "charger unavailable")

	if got := As(fmt.Errorf("handler: %w", outer)); got != outer {
		t.Fatalf("expected outer error, got %v", got)
	}
	if As(nil) != nil || As(stdErrors.New("plain")) != nil {
		t.Fatal("untyped errors should not match")
	}
	if details, _ := As(inner).Details().(map[string]any); details["charger_id"] != "c-1" {
		t.Fatalf("details lost: %v", inner.Details())
	}
}

func TestLogFieldsCapturesPgConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_charger_window_excl", TableName: "bookings"}
	err := Wrap(CodeWindowConflict, pgErr, "overlap")

	fields := LogFields(err)
	if fields["error_code"] != CodeWindowConflict {
		t.Fatalf("expected window conflict code, got %v", fields["error_code"])
	}
	if fields["pg_code"] != "23P01" || fields["pg_constraint"] != "bookings_charger_window_excl" {
		t.Fatalf("unexpected pg fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg values should be omitted: %v", fields)
	}
	if chain, _ := fields["error_chain"].([]string); len(chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", fields["error_chain"])
	}
}

func TestLogFieldsReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("migrate: %w", &pq.Error{Code: "42P01", Table: "stations", Message: "relation does not exist"})
	fields := LogFields(err)
	if fields["pg_code"] != "42P01" || fields["pg_table"] != "stations" {
		t.Fatalf("unexpected pq fields %v", fields)
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatalf("untyped errors carry no code: %v", fields)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("outer: %w", New(CodeNotFound, "gone"))); got != CodeNotFound {
		t.Fatalf("expected not found, got %s", got)
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal default, got %s", got)
	}
	if !IsCode(New(CodeRateLimit, "slow down"), CodeRateLimit) {
		t.Fatal("IsCode should match the typed code")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatal("nil error matches no code")
	}
}
