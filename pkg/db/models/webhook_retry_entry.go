package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// WebhookRetryEntry is an undelivered notification waiting for its next
// delivery attempt. Entries are removed on success or promoted to the
// dead-letter store once the attempt budget is exhausted.
type WebhookRetryEntry struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	NotificationSeq int64                  `gorm:"column:notification_seq;not null;unique"`
	Type            enums.NotificationType `gorm:"column:type;not null"`
	DepositID       uuid.UUID              `gorm:"column:deposit_id;type:uuid;not null;index"`
	Payload         json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	Attempts        int                    `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt   time.Time              `gorm:"column:next_attempt_at;not null;index"`
	LastError       *string                `gorm:"column:last_error"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
}
