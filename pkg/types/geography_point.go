package types

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	sridWGS84     = 4326
	ewkbSRIDFlag  = 0x20000000
	wkbPointType  = 1
	wkbPointBytes = 21 // order + type + two float64
)

var errNotAPoint = errors.New("geography: value is not a point")

// GeographyPoint is a station position stored as geography(Point, 4326).
type GeographyPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (g GeographyPoint) Validate() error {
	if math.IsNaN(g.Lat) || g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("geography: latitude %v out of range", g.Lat)
	}
	if math.IsNaN(g.Lng) || g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("geography: longitude %v out of range", g.Lng)
	}
	return nil
}

// Value writes EWKT, which Postgres casts to geography on insert. Sqlite
// stores the same text.
func (g GeographyPoint) Value() (driver.Value, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return fmt.Sprintf("SRID=%d;POINT(%s %s)", sridWGS84,
		strconv.FormatFloat(g.Lng, 'f', -1, 64),
		strconv.FormatFloat(g.Lat, 'f', -1, 64)), nil
}

// Scan reads EWKT, hex EWKB (Postgres text mode) or raw WKB bytes.
func (g *GeographyPoint) Scan(value any) error {
	var (
		p   GeographyPoint
		err error
	)
	switch v := value.(type) {
	case nil:
		*g = GeographyPoint{}
		return nil
	case string:
		p, err = parsePointText(v)
	case []byte:
		if len(v) > 0 && (v[0] == 0 || v[0] == 1) {
			p, err = decodePointWKB(v)
		} else {
			p, err = parsePointText(string(v))
		}
	default:
		return fmt.Errorf("geography: unsupported scan type %T", value)
	}
	if err != nil {
		return err
	}
	*g = p
	return nil
}

func parsePointText(raw string) (GeographyPoint, error) {
	raw = strings.TrimSpace(raw)
	if looksHex(raw) {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return GeographyPoint{}, fmt.Errorf("geography: %w", err)
		}
		return decodePointWKB(b)
	}
	if strings.HasPrefix(strings.ToUpper(raw), "SRID=") {
		if _, rest, ok := strings.Cut(raw, ";"); ok {
			raw = strings.TrimSpace(rest)
		}
	}
	body, ok := strings.CutPrefix(strings.ToUpper(raw), "POINT(")
	if !ok || !strings.HasSuffix(body, ")") {
		return GeographyPoint{}, fmt.Errorf("geography: unsupported text %q", raw)
	}
	coords := strings.Fields(strings.TrimSuffix(body, ")"))
	if len(coords) != 2 {
		return GeographyPoint{}, fmt.Errorf("geography: expected two coordinates in %q", raw)
	}
	lng, errLng := strconv.ParseFloat(coords[0], 64)
	lat, errLat := strconv.ParseFloat(coords[1], 64)
	if err := errors.Join(errLng, errLat); err != nil {
		return GeographyPoint{}, fmt.Errorf("geography: %w", err)
	}
	return GeographyPoint{Lat: lat, Lng: lng}, nil
}

func decodePointWKB(b []byte) (GeographyPoint, error) {
	if len(b) < wkbPointBytes {
		return GeographyPoint{}, fmt.Errorf("geography: wkb is %d bytes", len(b))
	}
	var order binary.ByteOrder = binary.LittleEndian
	if b[0] == 0 {
		order = binary.BigEndian
	}
	kind := order.Uint32(b[1:5])
	body := b[5:]
	if kind&ewkbSRIDFlag != 0 {
		body = body[4:]
	}
	if kind&^ewkbSRIDFlag != wkbPointType {
		return GeographyPoint{}, errNotAPoint
	}
	if len(body) < 16 {
		return GeographyPoint{}, fmt.Errorf("geography: truncated point")
	}
	return GeographyPoint{
		Lng: math.Float64frombits(order.Uint64(body[0:8])),
		Lat: math.Float64frombits(order.Uint64(body[8:16])),
	}, nil
}

// looksHex matches the hex EWKB Postgres prints for a point.
func looksHex(s string) bool {
	if len(s) < 2*wkbPointBytes || len(s)%2 != 0 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
