// Package models defines the domain types for the registration lifecycle.
//
// Valid status graph:
//
//	active ──► trial ──► studying ──► completed
//	  │          │          │
//	  │          ▼          ▼
//	  └────► studying    frozen ──► studying
//
//	waiting_payment ──► studying
//
// completed is terminal. waiting_payment has no regular inbound edge; it
// is entered only through the audited administrative override.
package models

import "fmt"

// Status represents the lifecycle stage of a registration. Values mirror
// the status column in PostgreSQL.
type Status string

// Possible registration statuses.
const (
	StatusActive         Status = "active"
	StatusTrial          Status = "trial"
	StatusStudying       Status = "studying"
	StatusFrozen         Status = "frozen"
	StatusWaitingPayment Status = "waiting_payment"
	StatusCompleted      Status = "completed"
)

// StatusInitial is assigned to new registrations.
const StatusInitial = StatusActive

// AllStatuses lists every known status in display order.
var AllStatuses = []Status{
	StatusActive,
	StatusTrial,
	StatusStudying,
	StatusFrozen,
	StatusWaitingPayment,
	StatusCompleted,
}

var statusLabels = map[Status]string{
	StatusActive:         "Active",
	StatusTrial:          "Trial lesson",
	StatusStudying:       "Studying",
	StatusFrozen:         "Frozen",
	StatusWaitingPayment: "Waiting for payment",
	StatusCompleted:      "Completed",
}

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusActive:         {StatusTrial, StatusStudying},
	StatusTrial:          {StatusStudying, StatusActive},
	StatusStudying:       {StatusFrozen, StatusCompleted},
	StatusFrozen:         {StatusStudying},
	StatusWaitingPayment: {StatusStudying},
	// completed is terminal, no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusLabels[st]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown registration status %q", s)
}

// Label returns the human-readable name for a status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal reports whether the status has no outgoing edges.
func (s Status) Terminal() bool {
	return s.Valid() && len(validTransitions[s]) == 0
}

// CanTransition returns true when moving from → to is permitted by the
// state machine. A transition to the current status is always allowed
// and treated as a no-op by callers.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
