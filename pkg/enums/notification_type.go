package enums

import "fmt"

// NotificationType names a deposit lifecycle event as delivered to the
// alert webhook endpoint.
type NotificationType string

const (
	NotificationDepositAuthorized        NotificationType = "deposit.authorized"
	NotificationDepositPartiallyCaptured NotificationType = "deposit.partially_captured"
	NotificationDepositCaptured          NotificationType = "deposit.captured"
	NotificationDepositReleased          NotificationType = "deposit.released"
	NotificationDepositCanceled          NotificationType = "deposit.canceled"
	NotificationDepositRefunded          NotificationType = "deposit.refunded"
	NotificationDepositFailed            NotificationType = "deposit.failed"
	NotificationDepositError             NotificationType = "deposit.error"
)

var validNotificationTypes = []NotificationType{
	NotificationDepositAuthorized,
	NotificationDepositPartiallyCaptured,
	NotificationDepositCaptured,
	NotificationDepositReleased,
	NotificationDepositCanceled,
	NotificationDepositRefunded,
	NotificationDepositFailed,
	NotificationDepositError,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationTypeForStatus maps an applied deposit status to its lifecycle
// event type.
func NotificationTypeForStatus(status DepositStatus) (NotificationType, error) {
	switch status {
	case DepositStatusAuthorized:
		return NotificationDepositAuthorized, nil
	case DepositStatusPartiallyCaptured:
		return NotificationDepositPartiallyCaptured, nil
	case DepositStatusCaptured:
		return NotificationDepositCaptured, nil
	case DepositStatusReleased:
		return NotificationDepositReleased, nil
	case DepositStatusCanceled:
		return NotificationDepositCanceled, nil
	case DepositStatusRefunded:
		return NotificationDepositRefunded, nil
	case DepositStatusFailed:
		return NotificationDepositFailed, nil
	}
	return "", fmt.Errorf("no notification type for status %q", status)
}
