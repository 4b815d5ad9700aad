package types

import "time"

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return func() time.Time { return time.Now().UTC() }
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
