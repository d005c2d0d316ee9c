package models

// Status represents where a record is in its calculation lifecycle.
type Status string

const (
	StatusPending     Status = "pending"     // Created, nothing fetched yet
	StatusCalculating Status = "calculating" // Price requests in flight
	StatusAvailable   Status = "available"   // Cost computed
	StatusError       Status = "error"       // Calculation failed, see error_message
)

// StatusTransition defines a valid status change.
type StatusTransition struct {
	From        Status
	To          Status
	Description string
}

// StatusTransitions lists every allowed status change. Terminal states have
// no outgoing edges.
var StatusTransitions = []StatusTransition{
	{StatusPending, StatusCalculating, "Calendar check passed, fetching prices"},
	{StatusPending, StatusError, "Rejected before any price request"},
	{StatusCalculating, StatusAvailable, "Both legs priced"},
	{StatusCalculating, StatusError, "Price missing or invalid"},
}

// IsValidTransition checks if moving from one status to another is allowed.
func IsValidTransition(from, to Status) bool {
	for _, t := range StatusTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusAvailable || s == StatusError
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCalculating, StatusAvailable, StatusError:
		return true
	}
	return false
}
