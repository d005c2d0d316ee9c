// Package models provides the straddle record, its status lifecycle, and the
// report structures produced by the statistics and backfill layers.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// CostEpsilon is the tolerance used when checking cost == call + put.
const CostEpsilon = 1e-6

// StraddleRecord is one trading day's computed straddle cost.
//
// The JSON form is flat: every field is a scalar and the date is encoded as
// YYYY-MM-DD. Price fields are pointers so that "not sampled" is distinct
// from a zero price.
type StraddleRecord struct {
	Date                time.Time  `json:"-"`
	Symbol              string     `json:"symbol"`
	UnderlyingPriceOpen *float64   `json:"underlying_price_open"`
	Strike              *float64   `json:"strike"`
	UpperLegPrice       *float64   `json:"upper_leg_price"`
	LowerLegPrice       *float64   `json:"lower_leg_price"`
	Cost                *float64   `json:"cost"`
	Status              Status     `json:"status"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ComputedAt          *time.Time `json:"computed_at,omitempty"`
}

// NewPendingRecord creates a record for date in the pending state.
func NewPendingRecord(date time.Time, symbol string) *StraddleRecord {
	return &StraddleRecord{
		Date:   CivilDate(date),
		Symbol: symbol,
		Status: StatusPending,
	}
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

type recordAlias StraddleRecord

// MarshalJSON encodes the record with its date as YYYY-MM-DD.
func (r StraddleRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date string `json:"date"`
		recordAlias
	}{
		Date:        FormatDate(r.Date),
		recordAlias: recordAlias(r),
	})
}

// UnmarshalJSON decodes a record produced by MarshalJSON.
func (r *StraddleRecord) UnmarshalJSON(b []byte) error {
	aux := struct {
		Date string `json:"date"`
		*recordAlias
	}{recordAlias: (*recordAlias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d, err := ParseDate(aux.Date)
	if err != nil {
		return fmt.Errorf("record date: %w", err)
	}
	r.Date = d
	return nil
}

// Transition moves the record to a new status if the lifecycle allows it.
func (r *StraddleRecord) Transition(to Status) error {
	if !IsValidTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// Fail marks the record as error with msg. Records already in a terminal
// state are left untouched.
func (r *StraddleRecord) Fail(msg string, now time.Time) {
	if err := r.Transition(StatusError); err != nil {
		return
	}
	r.ErrorMessage = msg
	r.Cost = nil
	t := now.UTC()
	r.ComputedAt = &t
}

// Complete sets cost from the two legs and marks the record available.
func (r *StraddleRecord) Complete(cost float64, now time.Time) error {
	if r.UpperLegPrice == nil || r.LowerLegPrice == nil {
		return fmt.Errorf("%w: both legs required", ErrMissingPriceData)
	}
	if err := r.Transition(StatusAvailable); err != nil {
		return err
	}
	r.Cost = Float64(cost)
	r.ErrorMessage = ""
	t := now.UTC()
	r.ComputedAt = &t
	return nil
}

// IsAvailable reports whether the record holds a usable cost.
func (r *StraddleRecord) IsAvailable() bool {
	return r != nil && r.Status == StatusAvailable && r.Cost != nil
}

// Validate checks the record invariants that storage relies on.
func (r *StraddleRecord) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("record date is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	switch r.Status {
	case StatusAvailable:
		if r.UpperLegPrice == nil || r.LowerLegPrice == nil || r.Cost == nil {
			return fmt.Errorf("available record for %s is missing prices", FormatDate(r.Date))
		}
		if math.Abs(*r.Cost-(*r.UpperLegPrice+*r.LowerLegPrice)) > CostEpsilon {
			return fmt.Errorf("cost %.4f does not equal legs %.4f + %.4f",
				*r.Cost, *r.UpperLegPrice, *r.LowerLegPrice)
		}
		if r.ErrorMessage != "" {
			return fmt.Errorf("available record carries error message")
		}
	case StatusError:
		if r.ErrorMessage == "" {
			return fmt.Errorf("error record for %s has no message", FormatDate(r.Date))
		}
	}
	return nil
}
