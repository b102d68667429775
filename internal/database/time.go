package database

import "time"

// UnixMillis converts a time to the persisted unix-millisecond form. The
// zero time maps to 0 so unset timestamps stay unset across a round trip.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

// FromUnixMillis converts a persisted unix-millisecond value back to UTC time.
func FromUnixMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
