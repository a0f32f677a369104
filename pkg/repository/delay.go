package repository

import (
	"math/rand/v2"
	"time"
)

// minDelay bounds the wait between two refreshes.
const minDelay = 5 * time.Second

// DelayFunc returns the wait before the next refresh for an update interval.
type DelayFunc func(interval time.Duration) time.Duration

// JitteredDelay waits half the interval plus a random share of up to one
// more interval, and never less than five seconds. Whole seconds only.
func JitteredDelay(interval time.Duration) time.Duration {
	return max(minDelay, jitter(interval))
}

// CappedDelay is JitteredDelay capped at five seconds instead of floored.
// Every refresh then runs within five seconds of the previous one, whatever
// the interval.
func CappedDelay(interval time.Duration) time.Duration {
	return min(minDelay, jitter(interval))
}

func jitter(interval time.Duration) time.Duration {
	secs := int64(interval / time.Second)
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs/2+rand.Int64N(secs)) * time.Second
}
