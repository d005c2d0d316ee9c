// Package marketdata resolves minute-bar opening prices for underlyings and
// same-day option contracts.
//
// Every source implements PriceSource. Decorators add a per-call timeout,
// retries for transient failures and a circuit breaker; see NewResilientSource.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/straddle_tracker/internal/calendar"
	"github.com/eddiefleurent/straddle_tracker/internal/models"
)

// ErrPriceUnavailable is returned when no bar exists for the requested minute.
var ErrPriceUnavailable = fmt.Errorf("price unavailable: %w", models.ErrMissingPriceData)

// PriceSource returns the open of the one-minute bar that begins at clock on
// date (exchange time) for contract.
type PriceSource interface {
	PriceAt(ctx context.Context, date time.Time, clock calendar.Clock, contract Contract) (float64, error)
}

// Right is the option right.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// Contract identifies either an underlying or a single option.
type Contract struct {
	Symbol string    // underlying symbol, e.g. SPX
	Root   string    // option root, e.g. SPXW; empty for underlyings
	Expiry time.Time // civil expiry date; zero for underlyings
	Right  Right
	Strike float64
}

// Underlying returns the contract for an index or equity.
func Underlying(symbol string) Contract {
	return Contract{Symbol: strings.ToUpper(symbol)}
}

// Option returns the contract for an option on root.
func Option(root string, expiry time.Time, right Right, strike float64) Contract {
	return Contract{
		Root:   strings.ToUpper(root),
		Expiry: models.CivilDate(expiry),
		Right:  right,
		Strike: strike,
	}
}

// IsOption reports whether c names an option.
func (c Contract) IsOption() bool {
	return c.Root != ""
}

// OCCSymbol renders the OSI symbol: root + YYMMDD + C/P + strike*1000 as
// eight digits, e.g. SPXW240304C05000000.
func (c Contract) OCCSymbol() string {
	if !c.IsOption() {
		return c.Symbol
	}
	return fmt.Sprintf("%s%s%s%08d", c.Root, c.Expiry.Format("060102"), c.Right,
		int64(math.Round(c.Strike*1000)))
}

func (c Contract) String() string {
	return c.OCCSymbol()
}

// ParseOCC parses an OSI option symbol, with or without the "O:" prefix.
func ParseOCC(s string) (Contract, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "O:")
	// root + YYMMDD + right + 8 digit strike
	if len(s) < 16 {
		return Contract{}, fmt.Errorf("option symbol %q too short", s)
	}
	strikePart := s[len(s)-8:]
	rightPart := s[len(s)-9]
	expiryPart := s[len(s)-15 : len(s)-9]
	root := s[:len(s)-15]

	if !isDigits(strikePart, 8) || !isDigits(expiryPart, 6) {
		return Contract{}, fmt.Errorf("option symbol %q has malformed expiry or strike", s)
	}
	if root == "" {
		return Contract{}, fmt.Errorf("option symbol %q has no root", s)
	}

	var right Right
	switch rightPart {
	case 'C', 'c':
		right = Call
	case 'P', 'p':
		right = Put
	default:
		return Contract{}, fmt.Errorf("option symbol %q has unknown right %q", s, rightPart)
	}

	expiry, err := time.ParseInLocation("060102", expiryPart, time.UTC)
	if err != nil {
		return Contract{}, fmt.Errorf("option symbol %q: %w", s, err)
	}
	milli, err := strconv.ParseInt(strikePart, 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("option symbol %q: %w", s, err)
	}
	return Option(root, expiry, right, float64(milli)/1000), nil
}

// isDigits checks that s consists of exactly n ASCII digits.
func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
