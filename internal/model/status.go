package model

import (
	"fmt"
	"strings"

	"github.com/and161185/econtract/internal/errs"
)

// Status is the lifecycle state of a contract.
type Status string

// Contract statuses.
const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusCanceled   Status = "canceled"
	StatusTerminated Status = "terminated"
)

// Statuses lists every defined status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusActive, StatusExpired, StatusCanceled, StatusTerminated}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusCanceled, StatusTerminated:
		return true
	}
	return false
}

// Closed reports whether s ends the contract's working life.
func (s Status) Closed() bool { return s == StatusCanceled || s == StatusTerminated }

// ParseStatus normalizes case and surrounding whitespace and validates the result.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("status %q: %w", v, errs.ErrInvalidStatus)
	}
	return s, nil
}

// strictTransitions is the lifecycle table used when a host opts into strict rules.
// Closed statuses have no outgoing edges.
var strictTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCanceled, StatusExpired},
	StatusActive:  {StatusExpired, StatusTerminated},
	StatusExpired: {StatusTerminated},
}

// CanTransition reports whether from -> to is allowed under the strict lifecycle table.
// Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Type classifies the agreement. It is descriptive and does not affect lifecycle rules.
type Type string

// Contract types.
const (
	TypeRental     Type = "rental"
	TypeService    Type = "service"
	TypeEmployment Type = "employment"
)

// Valid reports whether t is one of the defined contract types.
func (t Type) Valid() bool {
	switch t {
	case TypeRental, TypeService, TypeEmployment:
		return true
	}
	return false
}

// ParseType normalizes and validates a contract type.
func ParseType(v string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(v)))
	if !t.Valid() {
		return "", fmt.Errorf("type %q: %w", v, errs.ErrInvalidInput)
	}
	return t, nil
}

// SigningRule selects which parties must sign before a contract counts as fully signed.
type SigningRule string

const (
	// SignatoriesOnly requires a signature from every party with IsSignatory set.
	SignatoriesOnly SigningRule = "signatories"
	// AllParties requires a signature from every party, observers included.
	AllParties SigningRule = "all_parties"
)

// ParseSigningRule validates a rule name; empty selects SignatoriesOnly.
func ParseSigningRule(v string) (SigningRule, error) {
	switch r := SigningRule(strings.ToLower(strings.TrimSpace(v))); r {
	case "":
		return SignatoriesOnly, nil
	case SignatoriesOnly, AllParties:
		return r, nil
	}
	return "", fmt.Errorf("signing rule %q: %w", v, errs.ErrInvalidInput)
}
