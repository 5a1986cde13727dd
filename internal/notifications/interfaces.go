package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// LogRepository persists the append-only notification log. Seq is assigned
// by the store and is the stable index used for audit and resend.
type LogRepository interface {
	WithTx(tx *gorm.DB) LogRepository
	Append(ctx context.Context, notification *models.Notification) (*models.Notification, error)
	FindBySeq(ctx context.Context, seq int64) (*models.Notification, error)
	List(ctx context.Context, filters ListFilters) ([]models.Notification, error)
}

// RetryRepository persists notifications awaiting redelivery.
type RetryRepository interface {
	WithTx(tx *gorm.DB) RetryRepository
	Enqueue(ctx context.Context, entry *models.WebhookRetryEntry) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.WebhookRetryEntry, error)
	Update(ctx context.Context, entry *models.WebhookRetryEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DeadLetterRepository persists notifications whose delivery was given up
// on. Rows leave only through operator resend or delete.
type DeadLetterRepository interface {
	WithTx(tx *gorm.DB) DeadLetterRepository
	Insert(ctx context.Context, letter *models.WebhookDeadLetter) error
	FindByNotificationSeq(ctx context.Context, seq int64) (*models.WebhookDeadLetter, error)
	List(ctx context.Context, limit int) ([]models.WebhookDeadLetter, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Dispatcher hands a freshly appended notification to delivery. A returned
// error means even enqueueing for retry failed; delivery failures themselves
// are absorbed by the retry queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *models.Notification) error
}

// Deliverer performs one direct delivery to an explicit endpoint, outside
// the retry queue's attempt budget. Used by operator resend.
type Deliverer interface {
	Deliver(ctx context.Context, endpoint string, payload []byte) error
}

// Service is the notification subsystem surface: lifecycle publishing for
// the deposit controller, plus the audit and dead-letter admin contracts.
// AppendInTx joins the caller's transaction so the log entry commits with
// the state change it records; DispatchAppended runs after that commit.
type Service interface {
	Publish(ctx context.Context, eventType enums.NotificationType, deposit *models.Deposit) error
	AppendInTx(ctx context.Context, tx *gorm.DB, eventType enums.NotificationType, deposit *models.Deposit) (*models.Notification, error)
	DispatchAppended(ctx context.Context, notification *models.Notification)
	List(ctx context.Context, filters ListFilters) ([]models.Notification, error)
	ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookDeadLetter, error)
	ResendDeadLetter(ctx context.Context, input ResendInput) (*ResendResult, error)
}
