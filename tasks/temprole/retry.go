package temprole

import "time"

// retryDelay is the wait before reversal attempt number attempt (1-based):
// base, doubled per attempt, capped at max.
func retryDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
