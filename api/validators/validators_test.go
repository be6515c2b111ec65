package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

type windowBody struct {
	Start int `json:"start" validate:"gte=0"`
	End   int `json:"end" validate:"gt=0"`
}

type createBody struct {
	StationID string     `json:"station_id" validate:"required"`
	Type      string     `json:"type" validate:"required,oneof=instant scheduled"`
	Window    windowBody `json:"window"`
}

func decode(t *testing.T, body string) (createBody, error) {
	t.Helper()
	var dest createBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func validationDetails(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	got, err := decode(t, `{"station_id":"st-1","type":"scheduled","window":{"start":0,"end":30}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StationID != "st-1" || got.Window.End != 30 {
		t.Fatalf("unexpected decode %+v", got)
	}
}

func TestDecodeJSONBodyReportsJSONFieldPaths(t *testing.T) {
	_, err := decode(t, `{"type":"later","window":{"start":-1,"end":0}}`)
	details := validationDetails(t, err)
	want := map[string]string{
		"station_id":   "is required",
		"type":         "must be one of: instant, scheduled",
		"window.start": "must be 0 or more",
		"window.end":   "must be greater than 0",
	}
	for field, msg := range want {
		if details[field] != msg {
			t.Fatalf("field %s: want %q got %q (all=%v)", field, msg, details[field], details)
		}
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"station_id":"a","type":"instant","extra":1}`,
		"trailing":      `{"station_id":"a","type":"instant"}{}`,
		"wrong type":    `{"station_id":5}`,
		"syntax":        `{"station_id":`,
		"oversized":     `{"station_id":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decode(t, body); err == nil {
				t.Fatal("expected error")
			} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  Bay \t 4  ", 0, "Bay 4"},
		{"line\none\x00", 0, "line one"},
		{"héllo wörld", 5, "héllo"},
		{"ab cd", 3, "ab"},
		{"", 10, ""},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func queryRequest(rawQuery string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/stations?"+rawQuery, nil)
}

func TestParseQueryIntDefaultsAndBounds(t *testing.T) {
	got, err := ParseQueryInt(queryRequest(""), "page", 3, 0, 10)
	if err != nil || got != 3 {
		t.Fatalf("expected default 3, got %d (%v)", got, err)
	}
	if _, err := ParseQueryInt(queryRequest("page=11"), "page", 0, 0, 10); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := ParseQueryInt(queryRequest("page=two"), "page", 0, 0, 10); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected numeric error, got %v", err)
	}
}

func TestParseQueryFloatAndBool(t *testing.T) {
	lat, err := ParseQueryFloat(queryRequest("lat=12.5"), "lat")
	if err != nil || lat == nil || *lat != 12.5 {
		t.Fatalf("unexpected lat %v (%v)", lat, err)
	}
	if missing, err := ParseQueryFloat(queryRequest(""), "lat"); err != nil || missing != nil {
		t.Fatalf("expected nil for absent float, got %v (%v)", missing, err)
	}
	if ok, err := ParseQueryBool(queryRequest("hasAvailable=true"), "hasAvailable"); err != nil || !ok {
		t.Fatalf("expected true, got %v (%v)", ok, err)
	}
	if _, err := ParseQueryBool(queryRequest("hasAvailable=maybe"), "hasAvailable"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected boolean error, got %v", err)
	}
}

func TestParseQueryListDropsBlanks(t *testing.T) {
	got := ParseQueryList(queryRequest("amenities=wifi,,+cafe+,"), "amenities")
	if len(got) != 2 || got[0] != "wifi" || got[1] != "cafe" {
		t.Fatalf("unexpected list %v", got)
	}
	if ParseQueryList(queryRequest(""), "amenities") != nil {
		t.Fatal("expected nil list for absent parameter")
	}
}
