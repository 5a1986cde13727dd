package deposits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/internal/processor"
	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

type stubProcessor struct {
	authorizeFn   func(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error)
	reauthorizeFn func(ctx context.Context, params processor.ReauthorizeParams) (*processor.Authorization, error)
	captureFn     func(ctx context.Context, params processor.CaptureParams) (*processor.CaptureResult, error)
	cancelFn      func(ctx context.Context, intentID string) error
	refundFn      func(ctx context.Context, params processor.RefundParams) (*processor.RefundResult, error)

	authorizeCalls int
	lastCapture    processor.CaptureParams
	lastReauth     processor.ReauthorizeParams
	canceledIDs    []string
}

func (s *stubProcessor) Authorize(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
	s.authorizeCalls++
	if s.authorizeFn != nil {
		return s.authorizeFn(ctx, params)
	}
	return &processor.Authorization{
		IntentID:     "sq-" + uuid.NewString(),
		AmountCents:  params.AmountCents,
		AuthorizedAt: time.Now().UTC(),
	}, nil
}

func (s *stubProcessor) Reauthorize(ctx context.Context, params processor.ReauthorizeParams) (*processor.Authorization, error) {
	s.lastReauth = params
	if s.reauthorizeFn != nil {
		return s.reauthorizeFn(ctx, params)
	}
	return &processor.Authorization{
		IntentID:     "sq-" + uuid.NewString(),
		AmountCents:  params.AmountCents,
		AuthorizedAt: time.Now().UTC(),
	}, nil
}

func (s *stubProcessor) Capture(ctx context.Context, params processor.CaptureParams) (*processor.CaptureResult, error) {
	s.lastCapture = params
	if s.captureFn != nil {
		return s.captureFn(ctx, params)
	}
	return &processor.CaptureResult{
		Reference:   params.IntentID,
		AmountCents: params.AmountCents,
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func (s *stubProcessor) Cancel(ctx context.Context, intentID string) error {
	s.canceledIDs = append(s.canceledIDs, intentID)
	if s.cancelFn != nil {
		return s.cancelFn(ctx, intentID)
	}
	return nil
}

func (s *stubProcessor) Refund(ctx context.Context, params processor.RefundParams) (*processor.RefundResult, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, params)
	}
	return &processor.RefundResult{
		RefundID:    "rf-" + uuid.NewString(),
		AmountCents: params.AmountCents,
		RefundedAt:  time.Now().UTC(),
	}, nil
}

type publishedEvent struct {
	eventType enums.NotificationType
	status    enums.DepositStatus
	depositID uuid.UUID
}

type stubNotifier struct {
	events     []publishedEvent
	dispatched int
	err        error
}

func (s *stubNotifier) AppendInTx(ctx context.Context, tx *gorm.DB, eventType enums.NotificationType, deposit *models.Deposit) (*models.Notification, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, publishedEvent{
		eventType: eventType,
		status:    deposit.Status,
		depositID: deposit.ID,
	})
	return &models.Notification{
		Seq:       int64(len(s.events)),
		EventID:   uuid.New(),
		Type:      eventType,
		DepositID: deposit.ID,
	}, nil
}

func (s *stubNotifier) DispatchAppended(ctx context.Context, notification *models.Notification) {
	if notification != nil {
		s.dispatched++
	}
}

func newTestService(t *testing.T, conn *gorm.DB, proc *stubProcessor, notifier *stubNotifier) Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "deposits-test", Level: zerolog.Disabled})
	svc, err := NewService(NewRepository(conn), proc, notifier, logg)
	require.NoError(t, err)
	return svc
}

func validCreateInput() CreateDepositInput {
	return CreateDepositInput{
		CustomerID:      "cus-" + uuid.NewString(),
		PaymentMethodID: "card-1",
		Currency:        "USD",
		AmountCents:     5000,
		Metadata:        map[string]string{"booking_id": "bk-1"},
	}
}

func TestServiceCreateAuthorized(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit, err := svc.Create(context.Background(), validCreateInput())
	require.NoError(t, err)
	require.NotNil(t, deposit)

	assert.Equal(t, enums.DepositStatusAuthorized, deposit.Status)
	assert.Equal(t, "usd", deposit.Currency)
	require.NotNil(t, deposit.ActivePaymentIntentID)
	require.NotNil(t, deposit.VerificationPaymentIntentID)
	assert.Equal(t, *deposit.VerificationPaymentIntentID, *deposit.ActivePaymentIntentID)
	require.NotNil(t, deposit.InitialAuthorizationAt)
	require.NotNil(t, deposit.LastAuthorizationAt)
	require.Len(t, deposit.AuthorizationHistory, 1)
	assert.True(t, deposit.AuthorizationHistory[0].Success)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositAuthorized, notifier.events[0].eventType)
	assert.Equal(t, deposit.ID, notifier.events[0].depositID)
}

func TestServiceCreateRejectsBadInput(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	table := []struct {
		name  string
		edit  func(*CreateDepositInput)
	}{
		{"zero amount", func(in *CreateDepositInput) { in.AmountCents = 0 }},
		{"negative amount", func(in *CreateDepositInput) { in.AmountCents = -100 }},
		{"missing customer", func(in *CreateDepositInput) { in.CustomerID = "" }},
		{"missing payment method", func(in *CreateDepositInput) { in.PaymentMethodID = "  " }},
		{"bad currency", func(in *CreateDepositInput) { in.Currency = "dollars" }},
	}
	for _, tt := range table {
		input := validCreateInput()
		tt.edit(&input)
		_, err := svc.Create(context.Background(), input)
		require.Error(t, err, tt.name)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, tt.name)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code(), tt.name)
	}
	assert.Zero(t, proc.authorizeCalls)
	assert.Empty(t, notifier.events)
}

func TestServiceCreateTerminalDeclinePersistsFailedDeposit(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{
		authorizeFn: func(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
			return nil, processor.NewError(processor.CodeDeclined, "card declined", false)
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit, err := svc.Create(context.Background(), validCreateInput())
	require.Error(t, err)
	require.NotNil(t, deposit)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentDeclined, typed.Code())

	assert.Equal(t, enums.DepositStatusFailed, deposit.Status)
	require.NotNil(t, deposit.LastErrorCode)
	assert.Equal(t, string(processor.CodeDeclined), *deposit.LastErrorCode)
	require.Len(t, deposit.AuthorizationHistory, 1)
	assert.False(t, deposit.AuthorizationHistory[0].Success)

	// The failed attempt is durable.
	reloaded, findErr := NewRepository(conn).FindByID(context.Background(), deposit.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.DepositStatusFailed, reloaded.Status)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositFailed, notifier.events[0].eventType)
}

func TestServiceCreateRetryableFailureKeepsPendingDeposit(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{
		authorizeFn: func(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
			return nil, processor.NewError(processor.CodeUnavailable, "gateway timeout", true)
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit, err := svc.Create(context.Background(), validCreateInput())
	require.Error(t, err)
	require.NotNil(t, deposit)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.True(t, pkgerrors.IsRetryable(err))

	// The attempt is durable before the processor call, so the stalled hold
	// stays visible as a pending deposit with the failure recorded.
	assert.Equal(t, enums.DepositStatusPending, deposit.Status)
	require.NotNil(t, deposit.LastErrorCode)
	assert.Equal(t, string(processor.CodeUnavailable), *deposit.LastErrorCode)

	reloaded, findErr := NewRepository(conn).FindByID(context.Background(), deposit.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.DepositStatusPending, reloaded.Status)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositError, notifier.events[0].eventType)
}

func TestServiceCreateResumesStalledPendingDeposit(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	proc.authorizeFn = func(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
		if proc.authorizeCalls == 1 {
			return nil, processor.NewError(processor.CodeUnavailable, "gateway timeout", true)
		}
		return &processor.Authorization{
			IntentID:     "sq-" + uuid.NewString(),
			AmountCents:  params.AmountCents,
			AuthorizedAt: time.Now().UTC(),
		}, nil
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	input := validCreateInput()
	input.IdempotencyKey = "idem-" + uuid.NewString()

	first, err := svc.Create(context.Background(), input)
	require.Error(t, err)
	require.NotNil(t, first)
	assert.Equal(t, enums.DepositStatusPending, first.Status)

	// The retried create resumes the pending row instead of opening a
	// second hold.
	second, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enums.DepositStatusAuthorized, second.Status)
	assert.Nil(t, second.LastErrorCode)
	assert.Equal(t, 2, proc.authorizeCalls)

	var count int64
	require.NoError(t, conn.Model(&models.Deposit{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestServiceCreateDeclineOutlivesNotificationFailure(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{
		authorizeFn: func(ctx context.Context, params processor.AuthorizeParams) (*processor.Authorization, error) {
			return nil, processor.NewError(processor.CodeDeclined, "card declined", false)
		},
	}
	notifier := &stubNotifier{err: errors.New("notification log unavailable")}
	svc := newTestService(t, conn, proc, notifier)

	// The caller still learns the card was declined even when the decline
	// could not be recorded.
	_, err := svc.Create(context.Background(), validCreateInput())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentDeclined, typed.Code())
}

func TestServiceCreateIdempotentReplay(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	input := validCreateInput()
	input.IdempotencyKey = "idem-" + uuid.NewString()

	first, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, proc.authorizeCalls)
	// Replays do not re-notify.
	assert.Len(t, notifier.events, 1)
}

func TestServiceReauthorizeSuccess(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)
	previous := *deposit.ActivePaymentIntentID

	updated, err := svc.Reauthorize(context.Background(), deposit.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.DepositStatusAuthorized, updated.Status)
	require.NotNil(t, updated.ActivePaymentIntentID)
	assert.NotEqual(t, previous, *updated.ActivePaymentIntentID)
	assert.Equal(t, previous, proc.lastReauth.PreviousIntentID)
	require.Len(t, updated.AuthorizationHistory, 1)
	assert.True(t, updated.AuthorizationHistory[0].Success)
	assert.EqualValues(t, 1, updated.Revision)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositAuthorized, notifier.events[0].eventType)
}

func TestServiceReauthorizeRetryableDeclineKeepsState(t *testing.T) {
	conn := setupDepositsTestDB(t)
	perr := processor.NewError(processor.CodeUnavailable, "issuer unavailable", true)
	proc := &stubProcessor{
		reauthorizeFn: func(ctx context.Context, params processor.ReauthorizeParams) (*processor.Authorization, error) {
			return nil, perr
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	updated, err := svc.Reauthorize(context.Background(), deposit.ID)
	require.Error(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, enums.DepositStatusAuthorized, updated.Status)
	require.NotNil(t, updated.LastErrorCode)
	assert.Equal(t, string(processor.CodeUnavailable), *updated.LastErrorCode)
	require.Len(t, updated.AuthorizationHistory, 1)
	assert.False(t, updated.AuthorizationHistory[0].Success)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositError, notifier.events[0].eventType)
}

func TestServiceReauthorizeTerminalDeclineFailsDeposit(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{
		reauthorizeFn: func(ctx context.Context, params processor.ReauthorizeParams) (*processor.Authorization, error) {
			perr := processor.NewError(processor.CodeActionRequired, "verification required", false)
			perr.ActionRequired = &processor.ActionRequired{Type: "verification", Details: "3DS challenge"}
			return nil, perr
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	updated, err := svc.Reauthorize(context.Background(), deposit.ID)
	require.Error(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, enums.DepositStatusFailed, updated.Status)
	require.NotNil(t, updated.ActionRequiredType)
	assert.Equal(t, "verification", *updated.ActionRequiredType)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositFailed, notifier.events[0].eventType)
}

func TestServiceReauthorizeInvalidState(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusReleased, 5000)

	_, err := svc.Reauthorize(context.Background(), deposit.ID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Empty(t, notifier.events)
}

func TestServiceCaptureFull(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	updated, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, enums.DepositStatusCaptured, updated.Status)
	assert.Equal(t, updated.HoldAmount, updated.CapturedAmount)
	require.NotNil(t, updated.CapturedAt)
	assert.False(t, proc.lastCapture.Partial)
	require.Len(t, updated.CaptureHistory, 1)
	assert.True(t, updated.CaptureHistory[0].Success)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositCaptured, notifier.events[0].eventType)
}

func TestServiceCapturePartialThenFull(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	amount := int64(2000)
	partial, err := svc.Capture(context.Background(), deposit.ID, &amount)
	require.NoError(t, err)
	assert.Equal(t, enums.DepositStatusPartiallyCaptured, partial.Status)
	assert.EqualValues(t, 2000, partial.CapturedAmount)
	assert.Nil(t, partial.CapturedAt)
	assert.True(t, proc.lastCapture.Partial)

	full, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.DepositStatusCaptured, full.Status)
	assert.EqualValues(t, 5000, full.CapturedAmount)
	require.NotNil(t, full.CapturedAt)
	require.Len(t, full.CaptureHistory, 2)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, enums.NotificationDepositPartiallyCaptured, notifier.events[0].eventType)
	assert.Equal(t, enums.NotificationDepositCaptured, notifier.events[1].eventType)
}

func TestServiceCaptureValidatesAmount(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	over := int64(6000)
	_, err := svc.Capture(context.Background(), deposit.ID, &over)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	zero := int64(0)
	_, err = svc.Capture(context.Background(), deposit.ID, &zero)
	require.Error(t, err)
	assert.Empty(t, notifier.events)
}

func TestServiceCaptureFailureRecordsHistory(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{
		captureFn: func(ctx context.Context, params processor.CaptureParams) (*processor.CaptureResult, error) {
			return nil, processor.NewError(processor.CodeDeclined, "capture declined", false)
		},
	}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	updated, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.Error(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, enums.DepositStatusAuthorized, updated.Status)
	assert.Zero(t, updated.CapturedAmount)
	require.Len(t, updated.CaptureHistory, 1)
	assert.False(t, updated.CaptureHistory[0].Success)
	require.NotNil(t, updated.LastErrorCode)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositError, notifier.events[0].eventType)
}

func TestServiceCaptureRollsBackWhenAppendFails(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{err: errors.New("notification log unavailable")}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	_, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.Error(t, err)

	// The deposit write and the notification append share one transaction;
	// losing the append rolls the capture back.
	reloaded, findErr := NewRepository(conn).FindByID(context.Background(), deposit.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.DepositStatusAuthorized, reloaded.Status)
	assert.Zero(t, reloaded.CapturedAmount)
	assert.Empty(t, reloaded.CaptureHistory)
	assert.EqualValues(t, 0, reloaded.Revision)
	assert.Zero(t, notifier.dispatched)
}

func TestServiceCaptureFailureSkipsRecordAfterConcurrentRelease(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	proc.captureFn = func(ctx context.Context, params processor.CaptureParams) (*processor.CaptureResult, error) {
		// A concurrent release lands while the capture is in flight.
		require.NoError(t, conn.Exec(
			"UPDATE deposits SET status = ?, revision = revision + 1 WHERE id = ?",
			enums.DepositStatusReleased, deposit.ID,
		).Error)
		return nil, processor.NewError(processor.CodeDeclined, "capture declined", false)
	}

	_, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	// The released deposit keeps its terminal state untouched.
	reloaded, findErr := NewRepository(conn).FindByID(context.Background(), deposit.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.DepositStatusReleased, reloaded.Status)
	assert.Nil(t, reloaded.LastErrorCode)
	assert.Empty(t, notifier.events)
}

func TestServiceReleaseAuthorized(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)
	intent := *deposit.ActivePaymentIntentID

	updated, err := svc.Release(context.Background(), deposit.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.DepositStatusReleased, updated.Status)
	assert.EqualValues(t, 5000, updated.ReleasedAmount)
	require.NotNil(t, updated.ReleasedAt)
	assert.Equal(t, []string{intent}, proc.canceledIDs)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositReleased, notifier.events[0].eventType)
}

func TestServiceReleaseAfterPartialCaptureKeepsInvariant(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	amount := int64(1500)
	_, err := svc.Capture(context.Background(), deposit.ID, &amount)
	require.NoError(t, err)

	updated, err := svc.Release(context.Background(), deposit.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.DepositStatusReleased, updated.Status)
	assert.EqualValues(t, 1500, updated.CapturedAmount)
	assert.EqualValues(t, 3500, updated.ReleasedAmount)
	assert.LessOrEqual(t, updated.CapturedAmount+updated.ReleasedAmount, updated.HoldAmount)
}

func TestServiceReleasePendingCancels(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusPending, 5000)

	updated, err := svc.Release(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DepositStatusCanceled, updated.Status)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, enums.NotificationDepositCanceled, notifier.events[0].eventType)
}

func TestServiceRefund(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	_, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.NoError(t, err)

	amount := int64(3000)
	updated, err := svc.Refund(context.Background(), deposit.ID, &amount)
	require.NoError(t, err)

	assert.Equal(t, enums.DepositStatusRefunded, updated.Status)
	assert.EqualValues(t, 3000, updated.RefundedAmount)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, enums.NotificationDepositRefunded, notifier.events[1].eventType)
}

func TestServiceRefundValidatesBalance(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	_, err := svc.Capture(context.Background(), deposit.ID, nil)
	require.NoError(t, err)

	over := int64(6000)
	_, err = svc.Refund(context.Background(), deposit.ID, &over)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestServiceRefundInvalidState(t *testing.T) {
	conn := setupDepositsTestDB(t)
	proc := &stubProcessor{}
	notifier := &stubNotifier{}
	svc := newTestService(t, conn, proc, notifier)

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	amount := int64(1000)
	_, err := svc.Refund(context.Background(), deposit.ID, &amount)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestServiceGetNotFound(t *testing.T) {
	conn := setupDepositsTestDB(t)
	svc := newTestService(t, conn, &stubProcessor{}, &stubNotifier{})

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	assert.False(t, errors.Is(err, gorm.ErrRecordNotFound))
}
