package audit

import "time"

// Clock abstracts time retrieval so date-scoped identifiers and timestamps
// are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleeper abstracts backoff waits so retry logic runs instantly in tests.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper blocks for the requested duration.
type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }
