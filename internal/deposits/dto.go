package deposits

import (
	"time"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/enums"
)

// CreateDepositInput captures the fields required to place a new hold.
type CreateDepositInput struct {
	CustomerID      string
	PaymentMethodID string
	Currency        string
	AmountCents     int64
	IdempotencyKey  string
	Metadata        map[string]string
}

// ListFilters describe the inputs supported by the deposit list query.
type ListFilters struct {
	Status     *enums.DepositStatus
	CustomerID string
	MinAmount  *int64
	MaxAmount  *int64
	DateFrom   *time.Time
	DateTo     *time.Time
}

// DepositList wraps a page of deposits plus the next page cursor.
type DepositList struct {
	Deposits   []models.Deposit `json:"deposits"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
