package models

import "strings"

// Status is the internal lifecycle of a ledger transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// legalTransitions encodes the ledger state machine. Anything not listed
// (including every transition back to pending, and anything out of failed)
// is rejected. Rejection is not an error: it is the expected outcome of
// out-of-order job delivery.
var legalTransitions = map[Status][]Status{
	StatusPending:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {StatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is legal.
// s -> s is allowed so that duplicate deliveries stay idempotent.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// MapGatewayStatus translates the provider's status strings into the
// internal lifecycle. Unknown strings map to pending so a later poll with a
// recognized terminal status can still move the row forward.
func MapGatewayStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SETTLED", "COMPLETED":
		return StatusSucceeded
	case "FAILED", "EXPIRED", "CANCELLED", "REJECTED":
		return StatusFailed
	case "REFUNDED", "REVERSED":
		return StatusRefunded
	default:
		return StatusPending
	}
}
