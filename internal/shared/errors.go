package shared

import "errors"

var (
	// ErrAuthFailure indicates an invalid, expired or missing token.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates a failed permission bitmask check.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAuthorityInsufficient indicates the actor ranks below the target.
	ErrAuthorityInsufficient = errors.New("insufficient authority")
	// ErrValidation indicates a malformed join or payload.
	ErrValidation = errors.New("validation failed")
	// ErrInterNodeAuth indicates a bad inter-node relay key.
	ErrInterNodeAuth = errors.New("invalid inter-node key")
	// ErrStorage indicates a collaborator I/O failure.
	ErrStorage = errors.New("storage failure")
)
