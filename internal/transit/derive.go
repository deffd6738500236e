package transit

import (
	"fmt"
	"time"
)

// StaleAfter is how old a source-reported timestamp may be before the row or
// marker gets a visual warning. Stale records are flagged, never excluded.
const StaleAfter = 180 * time.Second

// IsStale reports whether a source timestamp is older than StaleAfter.
// Exactly 180s old is not stale. A zero (missing) timestamp is stale.
func IsStale(now, t time.Time) bool {
	if t.IsZero() {
		return true
	}
	return now.Sub(t) > StaleAfter
}

// BucketForLevel maps a reported crowding level to its chart bucket.
func BucketForLevel(level int) CrowdingBucket {
	switch {
	case level == 0 || level == 1:
		return BucketComfortable
	case level == 2:
		return BucketModerate
	case level >= 3:
		return BucketCrowded
	default:
		return BucketUnknown
	}
}

// FormatTimeAgo renders a timestamp as a short relative string for the table,
// falling back to clock time past an hour.
func FormatTimeAgo(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	default:
		return t.Format("15:04:05")
	}
}
