package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// WebhookDeadLetter is a notification that exhausted its delivery retries.
// Entries are immutable once written and only removed by explicit operator
// action (manual resend).
type WebhookDeadLetter struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	NotificationSeq int64                  `gorm:"column:notification_seq;not null;unique"`
	Type            enums.NotificationType `gorm:"column:type;not null"`
	DepositID       uuid.UUID              `gorm:"column:deposit_id;type:uuid;not null;index"`
	Payload         json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	Attempts        int                    `gorm:"column:attempts;not null"`
	ErrorReason     enums.DeadLetterReason `gorm:"column:error_reason;not null"`
	LastError       *string                `gorm:"column:last_error"`
	FailedAt        time.Time              `gorm:"column:failed_at;not null"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
}
