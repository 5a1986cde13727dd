package deposits

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/cardhold-backend/pkg/db"
	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cardhold-backend/pkg/errors"
	"github.com/angelmondragon/cardhold-backend/pkg/pagination"
)

func setupDepositsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS deposits (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  payment_method_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  hold_amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL,
  idempotency_key TEXT UNIQUE,
  verification_payment_intent_id TEXT,
  active_payment_intent_id TEXT,
  capture_payment_intent_id TEXT,
  captured_amount_cents INTEGER NOT NULL DEFAULT 0,
  released_amount_cents INTEGER NOT NULL DEFAULT 0,
  refunded_amount_cents INTEGER NOT NULL DEFAULT 0,
  authorization_history TEXT,
  capture_history TEXT,
  metadata TEXT,
  last_error_message TEXT,
  last_error_code TEXT,
  action_required_type TEXT,
  action_required_details TEXT,
  revision INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  initial_authorization_at DATETIME,
  last_authorization_at DATETIME,
  captured_at DATETIME,
  released_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	require.NoError(t, conn.Exec("DELETE FROM deposits").Error)
	return conn
}

func newDeposit(t *testing.T, conn *gorm.DB, status enums.DepositStatus, amount int64) *models.Deposit {
	t.Helper()

	intent := "sq-" + uuid.NewString()
	now := time.Now().UTC()
	deposit := &models.Deposit{
		ID:              uuid.New(),
		CustomerID:      "cus-" + uuid.NewString(),
		PaymentMethodID: "card-" + uuid.NewString(),
		Currency:        "usd",
		HoldAmount:      amount,
		Status:          status,
	}
	if status != enums.DepositStatusPending && status != enums.DepositStatusFailed {
		deposit.VerificationPaymentIntentID = &intent
		deposit.ActivePaymentIntentID = &intent
		deposit.InitialAuthorizationAt = &now
		deposit.LastAuthorizationAt = &now
	}
	require.NoError(t, conn.Create(deposit).Error)
	return deposit
}

func TestRepositoryCreateAndFind(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	key := "idem-" + uuid.NewString()
	deposit := &models.Deposit{
		ID:              uuid.New(),
		CustomerID:      "cus-1",
		PaymentMethodID: "card-1",
		Currency:        "usd",
		HoldAmount:      5000,
		Status:          enums.DepositStatusAuthorized,
		IdempotencyKey:  &key,
	}
	_, err := repo.Create(ctx, deposit)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, deposit.CustomerID, found.CustomerID)
	assert.Equal(t, int64(5000), found.HoldAmount)
	assert.EqualValues(t, 0, found.Revision)

	byKey, err := repo.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, deposit.ID, byKey.ID)

	// Reusing the key must trip the unique constraint.
	dupe := &models.Deposit{
		ID:              uuid.New(),
		CustomerID:      "cus-2",
		PaymentMethodID: "card-2",
		Currency:        "usd",
		HoldAmount:      1000,
		Status:          enums.DepositStatusAuthorized,
		IdempotencyKey:  &key,
	}
	_, err = repo.Create(ctx, dupe)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "idempotency_key"))
}

func TestRepositoryUpdateAppliesTransform(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	updated, err := repo.Update(ctx, deposit.ID, func(d *models.Deposit) error {
		d.CapturedAmount = 2000
		d.Status = enums.DepositStatusPartiallyCaptured
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated.Revision)
	assert.Equal(t, enums.DepositStatusPartiallyCaptured, updated.Status)

	reloaded, err := repo.FindByID(ctx, deposit.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, reloaded.CapturedAmount)
	assert.EqualValues(t, 1, reloaded.Revision)
}

func TestRepositoryUpdateRetriesLostRace(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	calls := 0
	updated, err := repo.Update(ctx, deposit.ID, func(d *models.Deposit) error {
		calls++
		if calls == 1 {
			// Simulate a concurrent writer winning the revision race.
			require.NoError(t, conn.Exec(
				"UPDATE deposits SET revision = revision + 1 WHERE id = ?", deposit.ID,
			).Error)
		}
		d.CapturedAmount = d.HoldAmount
		d.Status = enums.DepositStatusCaptured
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.EqualValues(t, 2, updated.Revision)
	assert.Equal(t, enums.DepositStatusCaptured, updated.Status)
}

func TestRepositoryUpdateSurfacesConflictWhenRaceNeverResolves(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	_, err := repo.Update(ctx, deposit.ID, func(d *models.Deposit) error {
		// Every attempt loses to a concurrent writer.
		require.NoError(t, conn.Exec(
			"UPDATE deposits SET revision = revision + 1 WHERE id = ?", deposit.ID,
		).Error)
		return nil
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestRepositoryUpdateTransformErrorAborts(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	deposit := newDeposit(t, conn, enums.DepositStatusReleased, 5000)

	_, err := repo.Update(ctx, deposit.ID, func(d *models.Deposit) error {
		return invalidTransition("capture", d.Status)
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	reloaded, err := repo.FindByID(ctx, deposit.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reloaded.Revision)
}

func TestRepositoryTransactRollsBackOnError(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	deposit := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)

	err := repo.Transact(ctx, func(tx *gorm.DB) error {
		_, err := repo.WithTx(tx).Update(ctx, deposit.ID, func(d *models.Deposit) error {
			d.Status = enums.DepositStatusReleased
			return nil
		})
		require.NoError(t, err)
		return pkgerrors.New(pkgerrors.CodeInternal, "abort")
	})
	require.Error(t, err)

	reloaded, findErr := repo.FindByID(ctx, deposit.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.DepositStatusAuthorized, reloaded.Status)
	assert.EqualValues(t, 0, reloaded.Revision)
}

func TestRepositoryListFilters(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	customer := "cus-" + uuid.NewString()
	small := newDeposit(t, conn, enums.DepositStatusAuthorized, 1000)
	big := newDeposit(t, conn, enums.DepositStatusAuthorized, 9000)
	released := newDeposit(t, conn, enums.DepositStatusReleased, 5000)
	require.NoError(t, conn.Model(&models.Deposit{}).
		Where("id IN ?", []uuid.UUID{small.ID, big.ID, released.ID}).
		Update("customer_id", customer).Error)

	status := enums.DepositStatusAuthorized
	list, err := repo.List(ctx, pagination.Params{}, ListFilters{
		Status:     &status,
		CustomerID: customer,
	})
	require.NoError(t, err)
	require.Len(t, list.Deposits, 2)

	minAmount := int64(5000)
	list, err = repo.List(ctx, pagination.Params{}, ListFilters{
		CustomerID: customer,
		MinAmount:  &minAmount,
	})
	require.NoError(t, err)
	require.Len(t, list.Deposits, 2)
	for _, d := range list.Deposits {
		assert.GreaterOrEqual(t, d.HoldAmount, minAmount)
	}
}

func TestRepositoryListCursorPagination(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	customer := "cus-" + uuid.NewString()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		d := newDeposit(t, conn, enums.DepositStatusAuthorized, 1000)
		ids = append(ids, d.ID)
		// Distinct created_at values keep the cursor ordering deterministic.
		require.NoError(t, conn.Model(&models.Deposit{}).
			Where("id = ?", d.ID).
			Updates(map[string]any{
				"customer_id": customer,
				"created_at":  time.Now().UTC().Add(time.Duration(i) * time.Minute),
			}).Error)
	}

	filters := ListFilters{CustomerID: customer}
	first, err := repo.List(ctx, pagination.Params{Limit: 2}, filters)
	require.NoError(t, err)
	require.Len(t, first.Deposits, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.List(ctx, pagination.Params{Limit: 2, Cursor: first.NextCursor}, filters)
	require.NoError(t, err)
	require.Len(t, second.Deposits, 2)
	require.NotEmpty(t, second.NextCursor)

	third, err := repo.List(ctx, pagination.Params{Limit: 2, Cursor: second.NextCursor}, filters)
	require.NoError(t, err)
	require.Len(t, third.Deposits, 1)
	assert.Empty(t, third.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, page := range [][]models.Deposit{first.Deposits, second.Deposits, third.Deposits} {
		for _, d := range page {
			assert.False(t, seen[d.ID], "deposit %s returned twice", d.ID)
			seen[d.ID] = true
		}
	}
	assert.Len(t, seen, len(ids))
}

func TestRepositoryFindReauthorizable(t *testing.T) {
	conn := setupDepositsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	stale := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)
	fresh := newDeposit(t, conn, enums.DepositStatusAuthorized, 5000)
	released := newDeposit(t, conn, enums.DepositStatusReleased, 5000)

	old := time.Now().UTC().Add(-6 * 24 * time.Hour)
	require.NoError(t, conn.Model(&models.Deposit{}).
		Where("id IN ?", []uuid.UUID{stale.ID, released.ID}).
		Update("last_authorization_at", old).Error)

	cutoff := time.Now().UTC().Add(-5 * 24 * time.Hour)
	rows, err := repo.FindReauthorizable(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
	assert.NotEqual(t, fresh.ID, rows[0].ID)
}
