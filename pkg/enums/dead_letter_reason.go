package enums

// DeadLetterReason records why a webhook delivery was given up on.
type DeadLetterReason string

const (
	DeadLetterReasonMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterReasonNonRetryable DeadLetterReason = "non_retryable"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterReasonMaxAttempts,
	DeadLetterReasonNonRetryable,
}

func (r DeadLetterReason) IsValid() bool {
	for _, candidate := range validDeadLetterReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
