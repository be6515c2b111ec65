package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinScore = 1
	MaxScore = 5

	maxCategoryName = 32
)

// Feedback is the optional post-session review attached to a completed booking.
type Feedback struct {
	Rating      int       `json:"rating"`
	Categories  Ratings   `json:"categories,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (f Feedback) Value() (driver.Value, error) {
	return jsonValue(f, "{}")
}

func (f *Feedback) Scan(value any) error {
	if value == nil {
		*f = Feedback{}
		return nil
	}
	return jsonScan(value, f, "feedback")
}

// Ratings holds per-category scores such as {"cleanliness": 4}.
type Ratings map[string]int

// ValidScore reports whether s is on the 1..5 scale.
func ValidScore(s int) bool {
	return s >= MinScore && s <= MaxScore
}

// Normalized lower-cases and trims category names and checks every score.
// Two names that normalize to the same key are rejected.
func (r Ratings) Normalized() (Ratings, error) {
	if len(r) == 0 {
		return nil, nil
	}
	out := make(Ratings, len(r))
	for name, score := range r {
		key := strings.ToLower(strings.TrimSpace(name))
		switch {
		case key == "" || utf8.RuneCountInString(key) > maxCategoryName:
			return nil, fmt.Errorf("invalid rating category %q", name)
		case !ValidScore(score):
			return nil, fmt.Errorf("category %q score must be between %d and %d", key, MinScore, MaxScore)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("rating category %q given twice", key)
		}
		out[key] = score
	}
	return out, nil
}

func (r Ratings) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	return jsonValue(map[string]int(r), "{}")
}

func (r *Ratings) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}
	result := make(Ratings)
	if err := jsonScan(value, (*map[string]int)(&result), "ratings"); err != nil {
		return err
	}
	*r = result
	return nil
}
