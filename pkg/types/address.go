package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// Address is stored as the address_t composite column of stations.
type Address struct {
	Line1      string  `json:"line1" yaml:"line1"`
	Line2      *string `json:"line2,omitempty" yaml:"line2,omitempty"`
	City       string  `json:"city" yaml:"city"`
	State      string  `json:"state" yaml:"state"`
	PostalCode string  `json:"postal_code" yaml:"postal_code"`
	Country    string  `json:"country" yaml:"country"`
}

const (
	defaultCountry = "IN"
	addressColumns = 6
)

var ErrAddressIncomplete = errors.New("address line1, city and state are required")

// Normalized trims every part, drops an empty line2 and fills the default
// country. It fails when line1, city or state is blank.
func (a Address) Normalized() (Address, error) {
	out := Address{
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if a.Line2 != nil {
		if line2 := strings.TrimSpace(*a.Line2); line2 != "" {
			out.Line2 = &line2
		}
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	if out.Line1 == "" || out.City == "" || out.State == "" {
		return Address{}, ErrAddressIncomplete
	}
	return out, nil
}

func (a Address) Value() (driver.Value, error) {
	n, err := a.Normalized()
	if err != nil {
		return nil, err
	}
	w := &compositeWriter{}
	w.text(n.Line1).nullable(n.Line2).text(n.City).text(n.State).text(n.PostalCode).text(n.Country)
	return w.String(), nil
}

func (a *Address) Scan(value any) error {
	if value == nil {
		*a = Address{}
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("address: unsupported scan type %T", value)
	}

	cols, err := readComposite(raw, addressColumns)
	if err != nil {
		return err
	}
	*a = Address{
		Line1:      cols[0].value,
		Line2:      cols[1].ptr(),
		City:       cols[2].value,
		State:      cols[3].value,
		PostalCode: cols[4].value,
		Country:    defaultCountry,
	}
	if c := strings.TrimSpace(cols[5].value); !cols[5].null() && c != "" {
		a.Country = c
	}
	return nil
}

// SearchText is the lowercase text free-text search runs against.
func (a Address) SearchText() string {
	return strings.ToLower(a.Line1 + " " + a.City)
}
