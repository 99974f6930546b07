package db

import "errors"

// Sentinel errors for the workflow core. The api package maps these onto
// HTTP statuses; everything else surfaces as an internal error.
var (
	// Validation errors — malformed input, no side effects.
	ErrInvalidTitle       = errors.New("title is empty or exceeds 200 characters")
	ErrInvalidDescription = errors.New("description is empty")
	ErrInvalidReward      = errors.New("reward must be positive")
	ErrEmptyContent       = errors.New("solution content is empty")
	ErrInvalidAmount      = errors.New("ledger posting amount must be non-zero")
	ErrInvalidDecision    = errors.New("decision must be 'approved' or 'rejected'")

	// Authorization errors.
	ErrSelfSolve      = errors.New("cannot submit a solution to your own problem")
	ErrNotValidator   = errors.New("only validators can validate solutions")
	ErrSelfValidate   = errors.New("cannot validate your own solution")
	ErrAuthorValidate = errors.New("cannot validate solutions to your own problem")

	// Conflict errors — a race or a stale client view.
	ErrDuplicateSubmission = errors.New("a solution for this problem was already submitted")
	ErrAlreadyValidated    = errors.New("solution has already been validated")

	// Balance errors.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// Invariant faults — internal, never an ordinary request failure.
	// Postings for the affected user halt until an operator reconciles.
	ErrLedgerFrozen       = errors.New("ledger postings are frozen for this user")
	ErrInvariantViolation = errors.New("ledger balance does not match sum of postings")
)
