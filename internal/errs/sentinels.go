// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across model/repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., contract id taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a malformed request or record.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidStatus indicates a status value outside the contract status enum.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrPartyNotFound indicates a signature or lookup for a party the contract does not have.
	ErrPartyNotFound = errors.New("party not found")

	// ErrDuplicateParty indicates a party id already present on the contract.
	ErrDuplicateParty = errors.New("duplicate party")

	// ErrTransitionDenied indicates a lifecycle change the active rules forbid.
	ErrTransitionDenied = errors.New("transition denied")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many rejected attempts from one actor and address.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates an optional backend (e.g. object storage) is not configured.
	ErrUnavailable = errors.New("unavailable")

	// ErrForbidden indicates an authenticated actor acting on someone else's behalf.
	ErrForbidden = errors.New("forbidden")
)
