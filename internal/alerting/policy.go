package alerting

import "time"

// SupportedMagnitudes are the threshold percentages a user may register.
var SupportedMagnitudes = []int64{5, 7, 8, 9, 10}

// IsSupportedMagnitude reports whether m is an accepted threshold.
func IsSupportedMagnitude(m int64) bool {
	for _, s := range SupportedMagnitudes {
		if s == m {
			return true
		}
	}
	return false
}

// CheckInterval maps threshold severity to evaluation cadence. The result is
// stored on the rule at creation and never recomputed.
func CheckInterval(magnitude int64) time.Duration {
	switch {
	case magnitude >= 10:
		return 5 * time.Minute
	case magnitude >= 7:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}

// DescribeInterval renders the cadence for user replies.
func DescribeInterval(d time.Duration) string {
	switch d {
	case 5 * time.Minute:
		return "5 minutes (urgent)"
	case 15 * time.Minute:
		return "15 minutes"
	case 30 * time.Minute:
		return "30 minutes"
	}
	return d.String()
}
