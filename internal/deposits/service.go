package deposits

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/internal/processor"
	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/cardhold-backend/pkg/db/types"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/pagination"
)

var currencyRe = regexp.MustCompile(`^[a-z]{3}$`)

type service struct {
	repo      Repository
	processor processor.Processor
	notifier  Notifier
	logger    *logger.Logger
	now       func() time.Time
}

// NewService builds the deposit lifecycle controller.
func NewService(repo Repository, proc processor.Processor, notifier Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("deposits: repository is required")
	}
	if proc == nil {
		return nil, errors.New("deposits: processor is required")
	}
	if notifier == nil {
		return nil, errors.New("deposits: notifier is required")
	}
	if logg == nil {
		return nil, errors.New("deposits: logger is required")
	}
	return &service{
		repo:      repo,
		processor: proc,
		notifier:  notifier,
		logger:    logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// eventResolver picks the notification type once the transform has settled
// the deposit's new state.
type eventResolver func(*models.Deposit) (enums.NotificationType, error)

func fixedEvent(eventType enums.NotificationType) eventResolver {
	return func(*models.Deposit) (enums.NotificationType, error) {
		return eventType, nil
	}
}

func statusEvent(d *models.Deposit) (enums.NotificationType, error) {
	eventType, err := enums.NotificationTypeForStatus(d.Status)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving notification type")
	}
	return eventType, nil
}

// applyTransition persists one transition and its notification in a single
// transaction, so the log's seq order matches the revision commit order per
// deposit. The appended notification is dispatched after the commit.
func (s *service) applyTransition(ctx context.Context, id uuid.UUID, transform func(*models.Deposit) error, event eventResolver) (*models.Deposit, error) {
	var (
		updated  *models.Deposit
		appended *models.Notification
	)
	err := s.repo.Transact(ctx, func(tx *gorm.DB) error {
		var txErr error
		updated, txErr = s.repo.WithTx(tx).Update(ctx, id, transform)
		if txErr != nil {
			return txErr
		}
		eventType, txErr := event(updated)
		if txErr != nil {
			return txErr
		}
		appended, txErr = s.notifier.AppendInTx(ctx, tx, eventType, updated)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.notifier.DispatchAppended(ctx, appended)
	return updated, nil
}

func (s *service) Create(ctx context.Context, input CreateDepositInput) (*models.Deposit, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	key := strings.TrimSpace(input.IdempotencyKey)

	var deposit *models.Deposit
	if key != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, key)
		switch {
		case err == nil && existing.Status == enums.DepositStatusPending:
			// A prior attempt stalled before its authorization outcome was
			// recorded; resume it instead of creating a second row.
			deposit = existing
		case err == nil:
			return existing, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, storageError(err, "looking up idempotency key")
		}
	}

	if deposit == nil {
		deposit = &models.Deposit{
			ID:              uuid.New(),
			CustomerID:      strings.TrimSpace(input.CustomerID),
			PaymentMethodID: strings.TrimSpace(input.PaymentMethodID),
			Currency:        currency,
			HoldAmount:      input.AmountCents,
			Status:          enums.DepositStatusPending,
			Metadata:        dbtypes.JSONMap(input.Metadata),
		}
		if key != "" {
			deposit.IdempotencyKey = &key
		}
		// The pending row is durable before the processor is asked for the
		// hold, so a crash mid-authorization leaves a record that a retried
		// create resumes and a release cancels.
		created, err := s.repo.Create(ctx, deposit)
		if err != nil {
			if key != "" && db.IsUniqueViolation(err, "idempotency_key") {
				// A concurrent create with the same key won; return its result.
				existing, findErr := s.repo.FindByIdempotencyKey(ctx, key)
				if findErr != nil {
					return nil, storageError(findErr, "resolving idempotent create")
				}
				return existing, nil
			}
			return nil, storageError(err, "persisting deposit")
		}
		deposit = created
	}
	ctx = s.logger.WithDepositID(ctx, deposit.ID.String())

	// The deposit id anchors processor idempotency when the caller did not
	// provide a key, so a resumed authorization lands on the same hold.
	processorKey := key
	if processorKey == "" {
		processorKey = deposit.ID.String()
	}
	auth, authErr := s.processor.Authorize(ctx, processor.AuthorizeParams{
		DepositID:       deposit.ID.String(),
		CustomerID:      deposit.CustomerID,
		PaymentMethodID: deposit.PaymentMethodID,
		AmountCents:     deposit.HoldAmount,
		Currency:        deposit.Currency,
		IdempotencyKey:  processorKey,
	})

	if authErr == nil {
		return s.applyTransition(ctx, deposit.ID, func(d *models.Deposit) error {
			if d.Status != enums.DepositStatusPending {
				return invalidTransition("authorize", d.Status)
			}
			intentID := auth.IntentID
			authorizedAt := auth.AuthorizedAt
			d.Status = enums.DepositStatusAuthorized
			d.VerificationPaymentIntentID = &intentID
			d.ActivePaymentIntentID = &intentID
			d.InitialAuthorizationAt = &authorizedAt
			d.LastAuthorizationAt = &authorizedAt
			d.AuthorizationHistory = d.AuthorizationHistory.Append(dbtypes.HistoryEntry{
				AmountCents: d.HoldAmount,
				Timestamp:   authorizedAt,
				Success:     true,
			})
			d.ClearLastError()
			return nil
		}, fixedEvent(enums.NotificationDepositAuthorized))
	}

	// Declined. A terminal decline ends the deposit; a retryable failure
	// keeps it pending with the failure recorded so the caller can resume
	// with the same idempotency key.
	terminal := !processor.IsRetryable(authErr)
	eventType := enums.NotificationDepositError
	if terminal {
		eventType = enums.NotificationDepositFailed
	}
	updated, err := s.applyTransition(ctx, deposit.ID, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusPending {
			return invalidTransition("authorize", d.Status)
		}
		d.AuthorizationHistory = d.AuthorizationHistory.Append(dbtypes.HistoryEntry{
			AmountCents: d.HoldAmount,
			Timestamp:   s.now(),
			Success:     false,
		})
		recordProcessorFailure(d, authErr)
		if terminal {
			d.Status = enums.DepositStatusFailed
		}
		return nil
	}, fixedEvent(eventType))
	if err != nil {
		// The decline is the caller's answer; the bookkeeping failure is the
		// operator's.
		s.logger.Error(ctx, "recording authorization failure failed", err)
		return nil, mapProcessorError(authErr)
	}
	return updated, mapProcessorError(authErr)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	deposit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deposit not found")
		}
		return nil, storageError(err, "loading deposit")
	}
	return deposit, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*DepositList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, storageError(err, "listing deposits")
	}
	return list, nil
}

func (s *service) Reauthorize(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	ctx = s.logger.WithDepositID(ctx, id.String())

	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.Status != enums.DepositStatusAuthorized {
		return nil, invalidTransition("reauthorize", deposit.Status)
	}

	previous := ""
	if deposit.ActivePaymentIntentID != nil {
		previous = *deposit.ActivePaymentIntentID
	}
	auth, authErr := s.processor.Reauthorize(ctx, processor.ReauthorizeParams{
		DepositID:        deposit.ID.String(),
		CustomerID:       deposit.CustomerID,
		PaymentMethodID:  deposit.PaymentMethodID,
		AmountCents:      deposit.HoldAmount,
		Currency:         deposit.Currency,
		PreviousIntentID: previous,
	})

	if authErr == nil {
		return s.applyTransition(ctx, id, func(d *models.Deposit) error {
			if d.Status != enums.DepositStatusAuthorized {
				return invalidTransition("reauthorize", d.Status)
			}
			intentID := auth.IntentID
			authorizedAt := auth.AuthorizedAt
			d.ActivePaymentIntentID = &intentID
			d.LastAuthorizationAt = &authorizedAt
			d.AuthorizationHistory = d.AuthorizationHistory.Append(dbtypes.HistoryEntry{
				AmountCents: d.HoldAmount,
				Timestamp:   authorizedAt,
				Success:     true,
			})
			d.ClearLastError()
			return nil
		}, fixedEvent(enums.NotificationDepositAuthorized))
	}

	// Decline. Retryable keeps the hold alive for another attempt; terminal
	// declines end the deposit.
	terminal := !processor.IsRetryable(authErr)
	eventType := enums.NotificationDepositError
	if terminal {
		eventType = enums.NotificationDepositFailed
	}
	updated, err := s.applyTransition(ctx, id, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusAuthorized {
			return invalidTransition("reauthorize", d.Status)
		}
		d.AuthorizationHistory = d.AuthorizationHistory.Append(dbtypes.HistoryEntry{
			AmountCents: d.HoldAmount,
			Timestamp:   s.now(),
			Success:     false,
		})
		recordProcessorFailure(d, authErr)
		if terminal {
			d.Status = enums.DepositStatusFailed
		}
		return nil
	}, fixedEvent(eventType))
	if err != nil {
		return nil, err
	}
	return updated, mapProcessorError(authErr)
}

func (s *service) Capture(ctx context.Context, id uuid.UUID, amountCents *int64) (*models.Deposit, error) {
	ctx = s.logger.WithDepositID(ctx, id.String())

	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.Status != enums.DepositStatusAuthorized &&
		deposit.Status != enums.DepositStatusPartiallyCaptured {
		return nil, invalidTransition("capture", deposit.Status)
	}

	remaining := deposit.RemainingAuthorized()
	amount := remaining
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capture amount must be positive")
	}
	if amount > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("capture amount %d exceeds remaining authorized balance %d", amount, remaining))
	}
	if deposit.ActivePaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deposit has no active payment intent")
	}
	intentID := *deposit.ActivePaymentIntentID

	result, capErr := s.processor.Capture(ctx, processor.CaptureParams{
		IntentID:    intentID,
		AmountCents: amount,
		Currency:    deposit.Currency,
		Partial:     amount < remaining,
	})

	if capErr != nil {
		updated, err := s.applyTransition(ctx, id, func(d *models.Deposit) error {
			if d.Status != enums.DepositStatusAuthorized &&
				d.Status != enums.DepositStatusPartiallyCaptured {
				return invalidTransition("capture", d.Status)
			}
			d.CaptureHistory = d.CaptureHistory.Append(dbtypes.HistoryEntry{
				AmountCents: amount,
				Timestamp:   s.now(),
				Success:     false,
			})
			recordProcessorFailure(d, capErr)
			return nil
		}, fixedEvent(enums.NotificationDepositError))
		if err != nil {
			return nil, err
		}
		return updated, mapProcessorError(capErr)
	}

	return s.applyTransition(ctx, id, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusAuthorized &&
			d.Status != enums.DepositStatusPartiallyCaptured {
			return invalidTransition("capture", d.Status)
		}
		if amount > d.RemainingAuthorized() {
			return pkgerrors.New(pkgerrors.CodeConflict, "remaining balance changed during capture")
		}
		d.CapturedAmount += amount
		d.CapturePaymentIntentID = &intentID
		d.CaptureHistory = d.CaptureHistory.Append(dbtypes.HistoryEntry{
			AmountCents: amount,
			Timestamp:   result.CapturedAt,
			Success:     true,
		})
		d.ClearLastError()
		if d.CapturedAmount == d.HoldAmount {
			capturedAt := result.CapturedAt
			d.Status = enums.DepositStatusCaptured
			d.CapturedAt = &capturedAt
		} else {
			d.Status = enums.DepositStatusPartiallyCaptured
		}
		return nil
	}, statusEvent)
}

func (s *service) Release(ctx context.Context, id uuid.UUID) (*models.Deposit, error) {
	ctx = s.logger.WithDepositID(ctx, id.String())

	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch deposit.Status {
	case enums.DepositStatusPending:
		return s.cancelPending(ctx, deposit)
	case enums.DepositStatusAuthorized, enums.DepositStatusPartiallyCaptured:
	default:
		return nil, invalidTransition("release", deposit.Status)
	}
	if deposit.ActivePaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deposit has no active payment intent")
	}

	if cancelErr := s.processor.Cancel(ctx, *deposit.ActivePaymentIntentID); cancelErr != nil {
		updated, err := s.applyTransition(ctx, id, func(d *models.Deposit) error {
			if d.Status != enums.DepositStatusAuthorized &&
				d.Status != enums.DepositStatusPartiallyCaptured {
				return invalidTransition("release", d.Status)
			}
			recordProcessorFailure(d, cancelErr)
			return nil
		}, fixedEvent(enums.NotificationDepositError))
		if err != nil {
			return nil, err
		}
		return updated, mapProcessorError(cancelErr)
	}

	releasedAt := s.now()
	return s.applyTransition(ctx, id, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusAuthorized &&
			d.Status != enums.DepositStatusPartiallyCaptured {
			return invalidTransition("release", d.Status)
		}
		d.ReleasedAmount = d.RemainingAuthorized()
		d.ReleasedAt = &releasedAt
		d.Status = enums.DepositStatusReleased
		d.ClearLastError()
		return nil
	}, fixedEvent(enums.NotificationDepositReleased))
}

// cancelPending voids the verification intent of a deposit that never got
// authorized, landing it in canceled.
func (s *service) cancelPending(ctx context.Context, deposit *models.Deposit) (*models.Deposit, error) {
	if deposit.VerificationPaymentIntentID != nil {
		if cancelErr := s.processor.Cancel(ctx, *deposit.VerificationPaymentIntentID); cancelErr != nil {
			return nil, mapProcessorError(cancelErr)
		}
	}
	return s.applyTransition(ctx, deposit.ID, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusPending {
			return invalidTransition("release", d.Status)
		}
		d.Status = enums.DepositStatusCanceled
		d.ClearLastError()
		return nil
	}, fixedEvent(enums.NotificationDepositCanceled))
}

func (s *service) Refund(ctx context.Context, id uuid.UUID, amountCents *int64) (*models.Deposit, error) {
	ctx = s.logger.WithDepositID(ctx, id.String())

	deposit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if deposit.Status != enums.DepositStatusCaptured &&
		deposit.Status != enums.DepositStatusPartiallyCaptured {
		return nil, invalidTransition("refund", deposit.Status)
	}

	refundable := deposit.RefundableAmount()
	amount := refundable
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount > refundable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund amount %d exceeds refundable balance %d", amount, refundable))
	}
	if deposit.CapturePaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deposit has no captured payment")
	}

	result, refundErr := s.processor.Refund(ctx, processor.RefundParams{
		IntentID:    *deposit.CapturePaymentIntentID,
		AmountCents: amount,
		Currency:    deposit.Currency,
		Reason:      "deposit refund",
	})

	if refundErr != nil {
		updated, err := s.applyTransition(ctx, id, func(d *models.Deposit) error {
			if d.Status != enums.DepositStatusCaptured &&
				d.Status != enums.DepositStatusPartiallyCaptured {
				return invalidTransition("refund", d.Status)
			}
			recordProcessorFailure(d, refundErr)
			return nil
		}, fixedEvent(enums.NotificationDepositError))
		if err != nil {
			return nil, err
		}
		return updated, mapProcessorError(refundErr)
	}

	return s.applyTransition(ctx, id, func(d *models.Deposit) error {
		if d.Status != enums.DepositStatusCaptured &&
			d.Status != enums.DepositStatusPartiallyCaptured {
			return invalidTransition("refund", d.Status)
		}
		if amount > d.RefundableAmount() {
			return pkgerrors.New(pkgerrors.CodeConflict, "refundable balance changed during refund")
		}
		d.RefundedAmount += result.AmountCents
		d.Status = enums.DepositStatusRefunded
		d.ClearLastError()
		return nil
	}, fixedEvent(enums.NotificationDepositRefunded))
}

func validateCreate(input CreateDepositInput) error {
	if strings.TrimSpace(input.CustomerID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if strings.TrimSpace(input.PaymentMethodID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "hold amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if !currencyRe.MatchString(currency) {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a three-letter ISO 4217 code")
	}
	return nil
}

func invalidTransition(op string, status enums.DepositStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot %s a deposit in status %q", op, status))
}

func storageError(err error, action string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action+" failed")
}

// recordProcessorFailure flattens the structured processor error onto the
// deposit's lastError and actionRequired columns.
func recordProcessorFailure(d *models.Deposit, err error) {
	perr, ok := processor.AsError(err)
	if !ok {
		d.SetLastError(string(processor.CodeUnavailable), err.Error())
		return
	}
	d.SetLastError(string(perr.Code), perr.Message)
	if perr.ActionRequired != nil {
		actionType := perr.ActionRequired.Type
		actionDetails := perr.ActionRequired.Details
		d.ActionRequiredType = &actionType
		d.ActionRequiredDetails = &actionDetails
	}
}

// mapProcessorError translates processor failures into the caller-facing
// error taxonomy.
func mapProcessorError(err error) error {
	perr, ok := processor.AsError(err)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unreachable")
	}
	switch perr.Code {
	case processor.CodeUnavailable:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unavailable")
	case processor.CodeActionRequired:
		return pkgerrors.Wrap(pkgerrors.CodeActionRequired, err, perr.Message)
	default:
		return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, perr.Message)
	}
}
