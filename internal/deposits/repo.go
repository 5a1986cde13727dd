package deposits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/pagination"
)

// updateAttempts bounds how many times a lost optimistic-concurrency race is
// retried before CONFLICT is surfaced to the caller.
const updateAttempts = 3

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deposit repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repository) Create(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	if err := r.db.WithContext(ctx).Create(deposit).Error; err != nil {
		return nil, err
	}
	return deposit, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&deposit).Error
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, transform func(*models.Deposit) error) (*models.Deposit, error) {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		deposit, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		observed := deposit.Revision
		if err := transform(deposit); err != nil {
			return nil, err
		}
		deposit.Revision = observed + 1
		deposit.UpdatedAt = time.Now().UTC()

		res := r.db.WithContext(ctx).
			Model(&models.Deposit{}).
			Where("id = ? AND revision = ?", id, observed).
			Select("*").
			Omit("id", "created_at").
			Updates(deposit)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return deposit, nil
		}
		// Someone else won the revision race; reload and reapply.
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "deposit was modified concurrently")
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*DepositList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Deposit{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CustomerID != "" {
		query = query.Where("customer_id = ?", filters.CustomerID)
	}
	if filters.MinAmount != nil {
		query = query.Where("hold_amount_cents >= ?", *filters.MinAmount)
	}
	if filters.MaxAmount != nil {
		query = query.Where("hold_amount_cents <= ?", *filters.MaxAmount)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Deposit
	err = query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	list := &DepositList{Deposits: rows}
	if len(rows) > limit {
		list.Deposits = rows[:limit]
		last := list.Deposits[limit-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}

func (r *repository) FindReauthorizable(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error) {
	var rows []models.Deposit
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.DepositStatusAuthorized).
		Where("last_authorization_at < ?", cutoff).
		Order("last_authorization_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
