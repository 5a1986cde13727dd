package processor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeclineCode classifies a processor failure.
type DeclineCode string

const (
	// CodeDeclined means the card issuer rejected the operation outright.
	CodeDeclined DeclineCode = "declined"
	// CodeActionRequired means the issuer demands a follow-up step
	// (verification, 3DS challenge) before the operation can succeed.
	CodeActionRequired DeclineCode = "action_required"
	// CodeInvalidRequest means the request itself was malformed or the
	// referenced intent/payment no longer exists.
	CodeInvalidRequest DeclineCode = "invalid_request"
	// CodeUnavailable covers transient transport and rate-limit failures.
	CodeUnavailable DeclineCode = "unavailable"
)

// ActionRequired carries the follow-up the issuer demands from the customer.
type ActionRequired struct {
	Type    string
	Details string
}

// Error is the structured failure every Processor call may return. Retryable
// distinguishes transient failures (retry the same call later) from terminal
// declines (the hold is dead).
type Error struct {
	Code           DeclineCode
	Message        string
	Retryable      bool
	ActionRequired *ActionRequired
	cause          error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("processor %s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("processor %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a processor error without an underlying cause.
func NewError(code DeclineCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// WrapError attaches an underlying cause to a processor error.
func WrapError(code DeclineCode, cause error, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable, cause: cause}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsRetryable reports whether err is a processor error marked retryable.
// Non-processor errors are treated as retryable transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if perr, ok := AsError(err); ok {
		return perr.Retryable
	}
	return true
}

// AuthorizeParams describes a new hold to place.
type AuthorizeParams struct {
	DepositID       string
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	IdempotencyKey  string
	Note            string
}

// ReauthorizeParams re-establishes a hold that is approaching processor-side
// expiry. PreviousIntentID is canceled after the replacement succeeds.
type ReauthorizeParams struct {
	DepositID        string
	CustomerID       string
	PaymentMethodID  string
	AmountCents      int64
	Currency         string
	PreviousIntentID string
}

// Authorization is the surviving handle of a successful hold.
type Authorization struct {
	IntentID     string
	AmountCents  int64
	AuthorizedAt time.Time
}

// CaptureParams completes a hold. Partial signals that AmountCents is less
// than the remaining authorized balance, so the hold must be shrunk before
// completion and the remainder returned to the customer.
type CaptureParams struct {
	IntentID    string
	AmountCents int64
	Currency    string
	Partial     bool
}

// CaptureResult reports a completed (full or partial) capture.
type CaptureResult struct {
	Reference   string
	AmountCents int64
	CapturedAt  time.Time
}

// RefundParams describes a refund against captured funds.
type RefundParams struct {
	IntentID    string
	AmountCents int64
	Currency    string
	Reason      string
}

// RefundResult reports a refund issued against captured funds.
type RefundResult struct {
	RefundID    string
	AmountCents int64
	RefundedAt  time.Time
}

// Processor is the card-network capability the deposit controller drives.
// Implementations must return *Error for every failure they can classify so
// the controller can tell terminal declines from transient outages.
type Processor interface {
	Authorize(ctx context.Context, params AuthorizeParams) (*Authorization, error)
	Reauthorize(ctx context.Context, params ReauthorizeParams) (*Authorization, error)
	Capture(ctx context.Context, params CaptureParams) (*CaptureResult, error)
	Cancel(ctx context.Context, intentID string) error
	Refund(ctx context.Context, params RefundParams) (*RefundResult, error)
}
