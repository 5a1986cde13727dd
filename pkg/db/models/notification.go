package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// Notification is one deposit lifecycle event, appended after the deposit
// write was durably applied. Seq is the stable per-entry index used for
// audit listing and resend-by-index.
type Notification struct {
	Seq       int64                  `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID   uuid.UUID              `gorm:"column:event_id;type:uuid;not null;unique"`
	Type      enums.NotificationType `gorm:"column:type;not null;index"`
	DepositID uuid.UUID              `gorm:"column:deposit_id;type:uuid;not null;index"`
	Payload   json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
