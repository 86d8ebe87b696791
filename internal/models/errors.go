package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these so
// callers can branch on the kind with errors.Is and still match the specific error.
var (
	ErrValidation      = errors.New("validation failed")
	ErrStateConflict   = errors.New("state conflict")
	ErrPolicyViolation = errors.New("policy violation")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

func kind(k error, msg string) error {
	return fmt.Errorf("%w: %s", k, msg)
}

// Validation errors.
var (
	ErrInvalidTemplate   = kind(ErrValidation, "unknown task template")
	ErrInvalidQuantity   = kind(ErrValidation, "max participants must be between 1 and the order limit")
	ErrInvalidPrice      = kind(ErrValidation, "unit price must be non-negative with at most two decimal places")
	ErrIncompleteProof   = kind(ErrValidation, "proof is missing a required artifact")
	ErrInvalidAmount     = kind(ErrValidation, "amount must be positive with at most two decimal places")
	ErrInvalidMethod     = kind(ErrValidation, "unknown withdrawal method")
	ErrInvalidDecision   = kind(ErrValidation, "decision must be approve or reject")
	ErrNoteTooLong       = kind(ErrValidation, "rejection note is too long")
	ErrInvalidInviteCode = kind(ErrValidation, "unknown invite code")
)

// State conflicts.
var (
	ErrAlreadyClaimed         = kind(ErrStateConflict, "sub-order is already claimed")
	ErrAlreadyAwaitingReview  = kind(ErrStateConflict, "proof is already awaiting review")
	ErrAlreadyFinalized       = kind(ErrStateConflict, "sub-order is already completed")
	ErrAlreadyProcessed       = kind(ErrStateConflict, "withdrawal request is already processed")
	ErrDuplicateCredit        = kind(ErrStateConflict, "sub-order has already been credited")
	ErrInvalidTransition      = kind(ErrStateConflict, "operation not allowed in the current state")
	ErrNotRejected            = kind(ErrStateConflict, "sub-order has not been rejected")
	ErrDuplicateParticipation = kind(ErrStateConflict, "commenter already holds a sub-order of this order")
	ErrOrderArchived          = kind(ErrStateConflict, "order is archived")
	ErrNotArchivable          = kind(ErrStateConflict, "order still has open sub-orders")
	ErrConcurrentUpdate       = kind(ErrStateConflict, "record was modified concurrently")
	ErrDuplicateEmail         = kind(ErrStateConflict, "email already registered")
)

// Policy violations.
var (
	ErrAmountOutOfRange       = kind(ErrPolicyViolation, "amount is outside the allowed withdrawal range")
	ErrWithdrawalWindowClosed = kind(ErrPolicyViolation, "withdrawals are not allowed today")
	ErrInsufficientBalance    = kind(ErrPolicyViolation, "insufficient balance")
)

// Ownership and lookup errors.
var (
	ErrNotOwner           = kind(ErrForbidden, "caller does not own this resource")
	ErrOrderNotFound      = kind(ErrNotFound, "order not found")
	ErrSubOrderNotFound   = kind(ErrNotFound, "sub-order not found")
	ErrWithdrawalNotFound = kind(ErrNotFound, "withdrawal request not found")
	ErrUserNotFound       = kind(ErrNotFound, "user not found")
)

// Kind returns the taxonomy sentinel err wraps, or nil for infrastructure errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrStateConflict, ErrPolicyViolation, ErrForbidden, ErrNotFound} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
