package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
)

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository builds the append-only notification log store.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) WithTx(tx *gorm.DB) LogRepository {
	if tx == nil {
		return r
	}
	return &logRepository{db: tx}
}

func (r *logRepository) Append(ctx context.Context, notification *models.Notification) (*models.Notification, error) {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, err
	}
	return notification, nil
}

func (r *logRepository) FindBySeq(ctx context.Context, seq int64) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).
		Where("seq = ?", seq).
		First(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *logRepository) List(ctx context.Context, filters ListFilters) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{})
	if filters.DepositID != nil {
		query = query.Where("deposit_id = ?", *filters.DepositID)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.FromSeq != nil {
		query = query.Where("seq >= ?", *filters.FromSeq)
	}
	if filters.ToSeq != nil {
		query = query.Where("seq <= ?", *filters.ToSeq)
	}
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.Notification
	err := query.
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type retryRepository struct {
	db *gorm.DB
}

// NewRetryRepository builds the webhook retry queue store.
func NewRetryRepository(db *gorm.DB) RetryRepository {
	return &retryRepository{db: db}
}

func (r *retryRepository) WithTx(tx *gorm.DB) RetryRepository {
	if tx == nil {
		return r
	}
	return &retryRepository{db: tx}
}

func (r *retryRepository) Enqueue(ctx context.Context, entry *models.WebhookRetryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *retryRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.WebhookRetryEntry, error) {
	var rows []models.WebhookRetryEntry
	err := r.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *retryRepository) Update(ctx context.Context, entry *models.WebhookRetryEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookRetryEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"attempts":        entry.Attempts,
			"next_attempt_at": entry.NextAttemptAt,
			"last_error":      entry.LastError,
		}).Error
}

func (r *retryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.WebhookRetryEntry{}).Error
}

type deadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository builds the dead-letter store.
func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) WithTx(tx *gorm.DB) DeadLetterRepository {
	if tx == nil {
		return r
	}
	return &deadLetterRepository{db: tx}
}

func (r *deadLetterRepository) Insert(ctx context.Context, letter *models.WebhookDeadLetter) error {
	return r.db.WithContext(ctx).Create(letter).Error
}

func (r *deadLetterRepository) FindByNotificationSeq(ctx context.Context, seq int64) (*models.WebhookDeadLetter, error) {
	var letter models.WebhookDeadLetter
	err := r.db.WithContext(ctx).
		Where("notification_seq = ?", seq).
		First(&letter).Error
	if err != nil {
		return nil, err
	}
	return &letter, nil
}

func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]models.WebhookDeadLetter, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.WebhookDeadLetter
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *deadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.WebhookDeadLetter{}).Error
}
