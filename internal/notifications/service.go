package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

type service struct {
	log        LogRepository
	deadLetter DeadLetterRepository
	dispatcher Dispatcher
	deliverer  Deliverer
	endpoint   string
	logger     *logger.Logger
	now        func() time.Time
}

// NewService wires the notification subsystem. endpoint is the default
// alert webhook URL used when a resend does not override it.
func NewService(log LogRepository, deadLetter DeadLetterRepository, dispatcher Dispatcher, deliverer Deliverer, endpoint string, logg *logger.Logger) (Service, error) {
	if log == nil {
		return nil, errors.New("notifications: log repository is required")
	}
	if deadLetter == nil {
		return nil, errors.New("notifications: dead letter repository is required")
	}
	if dispatcher == nil {
		return nil, errors.New("notifications: dispatcher is required")
	}
	if deliverer == nil {
		return nil, errors.New("notifications: deliverer is required")
	}
	if logg == nil {
		return nil, errors.New("notifications: logger is required")
	}
	return &service{
		log:        log,
		deadLetter: deadLetter,
		dispatcher: dispatcher,
		deliverer:  deliverer,
		endpoint:   strings.TrimSpace(endpoint),
		logger:     logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Publish appends one notification and hands it to the dispatcher. The
// append is synchronous and its failure is surfaced; a dispatch failure is
// logged only, because delivery belongs to the retry queue and must never
// fail the originating transition.
func (s *service) Publish(ctx context.Context, eventType enums.NotificationType, deposit *models.Deposit) error {
	notification, err := s.AppendInTx(ctx, nil, eventType, deposit)
	if err != nil {
		return err
	}
	s.DispatchAppended(ctx, notification)
	return nil
}

// AppendInTx writes the notification through tx when one is provided, so the
// log entry commits atomically with the deposit row it describes. The caller
// dispatches the returned notification once the transaction has committed.
func (s *service) AppendInTx(ctx context.Context, tx *gorm.DB, eventType enums.NotificationType, deposit *models.Deposit) (*models.Notification, error) {
	if deposit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit is required")
	}
	if !eventType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification type")
	}

	eventID := uuid.New()
	envelope := Envelope{
		EventID:    eventID,
		Type:       eventType.String(),
		DepositID:  deposit.ID,
		OccurredAt: s.now(),
		Data:       snapshot(deposit),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding notification payload")
	}

	notification, err := s.log.WithTx(tx).Append(ctx, &models.Notification{
		EventID:   eventID,
		Type:      eventType,
		DepositID: deposit.ID,
		Payload:   payload,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "appending notification")
	}
	return notification, nil
}

// DispatchAppended hands a committed notification to delivery.
func (s *service) DispatchAppended(ctx context.Context, notification *models.Notification) {
	if notification == nil {
		return
	}
	ctx = s.logger.WithNotificationSeq(ctx, notification.Seq)
	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		// Even the retry queue rejected the notification. The log entry is
		// durable, so an operator can replay it from the audit trail.
		s.logger.Error(ctx, "notification dispatch failed", err)
	}
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]models.Notification, error) {
	rows, err := s.log.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing notifications")
	}
	return rows, nil
}

func (s *service) ListDeadLetters(ctx context.Context, limit int) ([]models.WebhookDeadLetter, error) {
	rows, err := s.deadLetter.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing dead letters")
	}
	return rows, nil
}

// ResendDeadLetter redelivers one dead letter outside the retry queue's
// attempt budget. Success removes the entry; failure and dry runs leave it
// untouched.
func (s *service) ResendDeadLetter(ctx context.Context, input ResendInput) (*ResendResult, error) {
	letter, err := s.deadLetter.FindByNotificationSeq(ctx, input.Seq)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading dead letter")
	}

	endpoint := strings.TrimSpace(input.Endpoint)
	if endpoint == "" {
		endpoint = s.endpoint
	}

	result := &ResendResult{
		Seq:      letter.NotificationSeq,
		Endpoint: endpoint,
		DryRun:   input.DryRun,
		Payload:  letter.Payload,
	}
	if input.DryRun {
		return result, nil
	}
	if endpoint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no webhook endpoint configured or provided")
	}

	if err := s.deliverer.Deliver(ctx, endpoint, letter.Payload); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resend delivery failed")
	}
	if err := s.deadLetter.Delete(ctx, letter.ID); err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing delivered dead letter")
	}
	result.Delivered = true
	return result, nil
}

func snapshot(d *models.Deposit) DepositSnapshot {
	return DepositSnapshot{
		Status:           d.Status.String(),
		CustomerID:       d.CustomerID,
		Currency:         d.Currency,
		HoldAmount:       d.HoldAmount,
		CapturedAmount:   d.CapturedAmount,
		ReleasedAmount:   d.ReleasedAmount,
		RefundedAmount:   d.RefundedAmount,
		Metadata:         d.Metadata,
		LastErrorCode:    d.LastErrorCode,
		LastErrorText:    d.LastErrorMessage,
		ActionRequired:   d.ActionRequiredType,
		ActionDetails:    d.ActionRequiredDetails,
		CreatedAt:        d.CreatedAt,
		CapturedAt:       d.CapturedAt,
		ReleasedAt:       d.ReleasedAt,
		LastAuthorizedAt: d.LastAuthorizationAt,
	}
}
