package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrValidation is returned for invalid caller input, before any request is made.
var ErrValidation = errors.New("history: validation error")

// Limit caps how many records a fetch returns.
//
// The zero value is Limited(0), which is invalid.
type Limit struct {
	n         int
	unlimited bool
}

// Limited returns a limit of exactly n records (n must be positive).
func Limited(n int) Limit {
	return Limit{n: n}
}

// Unlimited returns a limit that fetches every page.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// ParseLimit parses a CLI limit: a positive integer, or "all"/"unlimited".
// Zero and negative counts parse but fail Validate.
func ParseLimit(s string) (Limit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "unlimited":
		return Unlimited(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Limit{}, fmt.Errorf("%w: limit %q is not a number or \"all\"", ErrValidation, s)
	}
	return Limited(n), nil
}

// IsUnlimited reports whether every page should be fetched.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Count returns the cap and true, or 0 and false when unlimited.
func (l Limit) Count() (int, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Validate rejects non-positive caps.
func (l Limit) Validate() error {
	if !l.unlimited && l.n <= 0 {
		return fmt.Errorf("%w: track limit must be positive, got %d", ErrValidation, l.n)
	}
	return nil
}

// String returns "all" or the cap.
func (l Limit) String() string {
	if l.unlimited {
		return "all"
	}
	return strconv.Itoa(l.n)
}
