package enums

import "fmt"

// DepositStatus tracks the lifecycle of a card deposit hold.
type DepositStatus string

const (
	DepositStatusPending           DepositStatus = "pending"
	DepositStatusAuthorized        DepositStatus = "authorized"
	DepositStatusPartiallyCaptured DepositStatus = "partially_captured"
	DepositStatusCaptured          DepositStatus = "captured"
	DepositStatusReleased          DepositStatus = "released"
	DepositStatusCanceled          DepositStatus = "canceled"
	DepositStatusRefunded          DepositStatus = "refunded"
	DepositStatusFailed            DepositStatus = "failed"
)

var validDepositStatuses = []DepositStatus{
	DepositStatusPending,
	DepositStatusAuthorized,
	DepositStatusPartiallyCaptured,
	DepositStatusCaptured,
	DepositStatusReleased,
	DepositStatusCanceled,
	DepositStatusRefunded,
	DepositStatusFailed,
}

// String implements fmt.Stringer.
func (d DepositStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DepositStatus.
func (d DepositStatus) IsValid() bool {
	for _, candidate := range validDepositStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
// Terminal deposits are retained for audit, never deleted.
func (d DepositStatus) IsTerminal() bool {
	switch d {
	case DepositStatusCaptured, DepositStatusReleased, DepositStatusCanceled,
		DepositStatusRefunded, DepositStatusFailed:
		return true
	}
	return false
}

// ParseDepositStatus converts raw input into a DepositStatus.
func ParseDepositStatus(value string) (DepositStatus, error) {
	for _, candidate := range validDepositStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deposit status %q", value)
}
