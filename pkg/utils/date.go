package utils

import "time"

// MarketDay truncates t to the start of its calendar day in loc. The
// daily-loss counters reset on this boundary.
func MarketDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// TimeBucket floors t to the given period. Used to derive idempotency keys
// for scheduled triggers so redeliveries within one period share a key.
func TimeBucket(t time.Time, period time.Duration) time.Time {
	return t.Truncate(period)
}
