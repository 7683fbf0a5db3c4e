package core

import "errors"

var (
	// ErrValidation is returned when input is malformed or missing
	ErrValidation = errors.New("invalid input")

	// ErrInvalidLoginAttempt is returned when no outstanding challenge exists for an address
	ErrInvalidLoginAttempt = errors.New("invalid login attempt")

	// ErrInvalidSignature is returned when a signature does not recover to the claimed address
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSessionInvalid is returned for missing, expired and revoked sessions alike
	ErrSessionInvalid = errors.New("session is invalid")

	// ErrForbidden is returned when the actor's role does not permit the operation
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalized is returned when a submission left PENDING before this decision
	ErrAlreadyFinalized = errors.New("submission already finalized")

	// ErrAlreadyClaimed is returned when a submission's reward was claimed before
	ErrAlreadyClaimed = errors.New("submission already claimed")

	// ErrNotEligible is returned when a submission is not eligible for a reward claim
	ErrNotEligible = errors.New("submission not eligible for claim")

	// ErrStore is returned when a storage operation fails
	ErrStore = errors.New("store operation failed")
)
