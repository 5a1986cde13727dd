package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/cardhold-backend/pkg/db/types"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// ListFilters describe the inputs supported by the notification list query.
type ListFilters struct {
	DepositID *uuid.UUID
	Type      *enums.NotificationType
	FromSeq   *int64
	ToSeq     *int64
	Limit     int
}

// Envelope is the wire shape POSTed to the alert webhook endpoint.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	Type       string          `json:"type"`
	DepositID  uuid.UUID       `json:"deposit_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       DepositSnapshot `json:"data"`
}

// DepositSnapshot is the deposit state carried inside a notification,
// captured at the moment the transition was applied.
type DepositSnapshot struct {
	Status           string          `json:"status"`
	CustomerID       string          `json:"customer_id"`
	Currency         string          `json:"currency"`
	HoldAmount       int64           `json:"hold_amount_cents"`
	CapturedAmount   int64           `json:"captured_amount_cents"`
	ReleasedAmount   int64           `json:"released_amount_cents"`
	RefundedAmount   int64           `json:"refunded_amount_cents"`
	Metadata         dbtypes.JSONMap `json:"metadata,omitempty"`
	LastErrorCode    *string         `json:"last_error_code,omitempty"`
	LastErrorText    *string         `json:"last_error_message,omitempty"`
	ActionRequired   *string         `json:"action_required_type,omitempty"`
	ActionDetails    *string         `json:"action_required_details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CapturedAt       *time.Time      `json:"captured_at,omitempty"`
	ReleasedAt       *time.Time      `json:"released_at,omitempty"`
	LastAuthorizedAt *time.Time      `json:"last_authorization_at,omitempty"`
}

// ResendInput identifies a dead letter to redeliver. Seq is the original
// notification sequence. DryRun returns the payload without network I/O and
// leaves the entry in place.
type ResendInput struct {
	Seq      int64
	Endpoint string
	DryRun   bool
}

// ResendResult reports the outcome of a manual dead-letter resend.
type ResendResult struct {
	Seq       int64           `json:"seq"`
	Endpoint  string          `json:"endpoint,omitempty"`
	Delivered bool            `json:"delivered"`
	DryRun    bool            `json:"dry_run"`
	Payload   json.RawMessage `json:"payload"`
}
