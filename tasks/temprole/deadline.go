package temprole

import (
	"role-keeper/model"
	"time"
)

// TotalDuration returns the full length of a duration class, or 0 for an
// unknown class.
func TotalDuration(class model.DurationClass) time.Duration {
	l, _ := class.Length()
	return l
}

// Remaining returns how long a grant started at start still has to run at
// now: max(0, total - (now - start)). A start time in the future (clock
// skew) counts as just started. Unknown classes have nothing remaining.
func Remaining(start time.Time, class model.DurationClass, now time.Time) time.Duration {
	total := TotalDuration(class)
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= total {
		return 0
	}
	return total - elapsed
}
