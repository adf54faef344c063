package utils

import "time"

func UnixMillisecond(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// FromUnixMillisecond is the inverse of UnixMillisecond
func FromUnixMillisecond(ms int64) time.Time {
	return time.UnixMilli(ms)
}
