package domain

import "errors"

var (
	// ErrValidation is returned for bad client input, before anything is queued
	ErrValidation = errors.New("validation error")

	// ErrPaymentRejected is returned when a transaction is not a valid payment
	ErrPaymentRejected = errors.New("payment rejected")

	// ErrSlotAlreadyUsed is returned when the paid slot has already been minted
	ErrSlotAlreadyUsed = errors.New("slot already used")

	// ErrUpstream is returned when the chain or the minter fails
	ErrUpstream = errors.New("upstream failure")

	// ErrNotFound is returned for status queries on unknown or expired references
	ErrNotFound = errors.New("job not found")

	// ErrQueueFull is returned when the mint queue is at capacity
	ErrQueueFull = errors.New("mint queue is full")

	// ErrDuplicateSubmission is returned when a reference is already queued, processing or minted
	ErrDuplicateSubmission = errors.New("payment reference already submitted")
)

// ValidationError describes which input field was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new validation error
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RejectionReason identifies which payment check failed
type RejectionReason string

// Payment rejection reasons, in check order
const (
	RejectTxNotFound           RejectionReason = "tx_not_found"
	RejectTxFailed             RejectionReason = "tx_failed"
	RejectProgramMissing       RejectionReason = "program_missing"
	RejectProgramLogsMissing   RejectionReason = "program_logs_missing"
	RejectPaymentLogMissing    RejectionReason = "payment_log_missing"
	RejectBeneficiaryMissing   RejectionReason = "beneficiary_missing"
	RejectInsufficientAmount   RejectionReason = "insufficient_amount"
	RejectIncorrectTokenAmount RejectionReason = "incorrect_token_amount"
)

// PaymentRejectedError carries the failed check and a human readable detail
type PaymentRejectedError struct {
	Reason RejectionReason
	Detail string
}

func (e *PaymentRejectedError) Error() string {
	return "invalid payment tx: " + e.Detail
}

func (e *PaymentRejectedError) Is(target error) bool {
	return target == ErrPaymentRejected
}

// NewPaymentRejected creates a new payment rejection
func NewPaymentRejected(reason RejectionReason, detail string) error {
	return &PaymentRejectedError{Reason: reason, Detail: detail}
}

// UpstreamError wraps failures of the chain or the minter
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError creates a new upstream error
func NewUpstreamError(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
