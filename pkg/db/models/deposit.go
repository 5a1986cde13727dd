package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/cardhold-backend/pkg/db/types"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// Deposit is a temporary authorization hold on a customer's card. Records are
// mutated exclusively through the lifecycle service and never deleted;
// terminal statuses are retained for audit.
type Deposit struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID      string    `gorm:"column:customer_id;not null;index"`
	PaymentMethodID string    `gorm:"column:payment_method_id;not null"`

	// Currency is a lowercase ISO 4217 code, immutable after creation.
	Currency       string              `gorm:"column:currency;not null"`
	HoldAmount     int64               `gorm:"column:hold_amount_cents;not null"`
	Status         enums.DepositStatus `gorm:"column:status;not null;index"`
	IdempotencyKey *string             `gorm:"column:idempotency_key;unique"`

	VerificationPaymentIntentID *string `gorm:"column:verification_payment_intent_id"`
	ActivePaymentIntentID       *string `gorm:"column:active_payment_intent_id"`
	CapturePaymentIntentID      *string `gorm:"column:capture_payment_intent_id"`

	CapturedAmount int64 `gorm:"column:captured_amount_cents;not null;default:0"`
	ReleasedAmount int64 `gorm:"column:released_amount_cents;not null;default:0"`
	RefundedAmount int64 `gorm:"column:refunded_amount_cents;not null;default:0"`

	AuthorizationHistory dbtypes.HistoryEntries `gorm:"column:authorization_history;type:jsonb"`
	CaptureHistory       dbtypes.HistoryEntries `gorm:"column:capture_history;type:jsonb"`
	Metadata             dbtypes.JSONMap        `gorm:"column:metadata;type:jsonb"`

	LastErrorMessage      *string `gorm:"column:last_error_message"`
	LastErrorCode         *string `gorm:"column:last_error_code"`
	ActionRequiredType    *string `gorm:"column:action_required_type"`
	ActionRequiredDetails *string `gorm:"column:action_required_details"`

	// Revision serializes concurrent read-modify-write updates; every
	// persisted mutation increments it and writes are conditional on the
	// revision observed at read time.
	Revision int64 `gorm:"column:revision;not null;default:0"`

	CreatedAt              time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	InitialAuthorizationAt *time.Time `gorm:"column:initial_authorization_at"`
	LastAuthorizationAt    *time.Time `gorm:"column:last_authorization_at;index"`
	CapturedAt             *time.Time `gorm:"column:captured_at"`
	ReleasedAt             *time.Time `gorm:"column:released_at"`
}

// RemainingAuthorized is the balance still held against the card.
func (d *Deposit) RemainingAuthorized() int64 {
	return d.HoldAmount - d.CapturedAmount - d.ReleasedAmount
}

// RefundableAmount is the captured balance net of prior refunds.
func (d *Deposit) RefundableAmount() int64 {
	return d.CapturedAmount - d.RefundedAmount
}

// ClearLastError drops the recorded processor failure and any pending
// cardholder action; called on the next successful transition.
func (d *Deposit) ClearLastError() {
	d.LastErrorMessage = nil
	d.LastErrorCode = nil
	d.ActionRequiredType = nil
	d.ActionRequiredDetails = nil
}

// SetLastError records the most recent processor-reported failure.
func (d *Deposit) SetLastError(code, message string) {
	d.LastErrorCode = &code
	d.LastErrorMessage = &message
}
