package deposits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	"github.com/angelmondragon/cardhold-backend/pkg/pagination"
)

// Repository defines persistence operations for deposit records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Transact runs fn inside one database transaction so a deposit write
	// and its notification append commit or roll back together.
	Transact(ctx context.Context, fn func(tx *gorm.DB) error) error
	Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Deposit, error)
	// Update applies transform under optimistic concurrency: load, transform,
	// write conditional on the loaded revision. A lost race reloads and
	// reapplies transform a bounded number of times before reporting CONFLICT.
	Update(ctx context.Context, id uuid.UUID, transform func(*models.Deposit) error) (*models.Deposit, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*DepositList, error)
	// FindReauthorizable returns authorized deposits whose last authorization
	// is older than cutoff, oldest first.
	FindReauthorizable(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error)
}

// Notifier records lifecycle notifications. AppendInTx writes the log entry
// inside the deposit's transaction so per-deposit emission order matches
// commit order; DispatchAppended hands the committed entry to delivery, with
// failures absorbed by the retry queue. Implemented by the notifications
// service.
type Notifier interface {
	AppendInTx(ctx context.Context, tx *gorm.DB, eventType enums.NotificationType, deposit *models.Deposit) (*models.Notification, error)
	DispatchAppended(ctx context.Context, notification *models.Notification)
}

// Service is the deposit lifecycle controller. Mutating calls return the
// persisted deposit together with any error: a non-nil deposit alongside a
// non-nil error means the failure itself was durably recorded on the record.
type Service interface {
	Create(ctx context.Context, input CreateDepositInput) (*models.Deposit, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*DepositList, error)
	Reauthorize(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	Capture(ctx context.Context, id uuid.UUID, amountCents *int64) (*models.Deposit, error)
	Release(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
	Refund(ctx context.Context, id uuid.UUID, amountCents *int64) (*models.Deposit, error)
}
