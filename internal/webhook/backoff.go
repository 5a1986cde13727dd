package webhook

import "time"

// Backoff returns the delay before the next delivery attempt after failure
// number attempt (1-based): base doubling per failure, capped at the delay
// of the final allowed attempt.
func Backoff(base time.Duration, attempt, maxAttempts int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	if maxAttempts > 0 && exp > maxAttempts-1 {
		exp = maxAttempts - 1
	}
	// 2^30 minutes already exceeds any practical retry horizon.
	if exp > 30 {
		exp = 30
	}
	return base << uint(exp)
}
