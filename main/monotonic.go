/*
	monotonic.go: Session clock. Wall-clock steps (NTP corrections, RTC
	drift on small boards) must not disturb data timestamps or uptime
	accounting, so everything is derived from a single start reading of
	Go's runtime clock: time.Since carries the monotonic reading, which
	makes a watcher goroutine counting ticker ticks unnecessary. The
	task schedulers keep their own fractional-accumulator deadlines
	(sensors.go); this clock only stamps data and reports uptime.
*/

package main

import (
	"time"

	humanize "github.com/dustin/go-humanize"
)

type monotonic struct {
	start time.Time
}

func NewMonotonic() *monotonic {
	return &monotonic{start: time.Now()}
}

// Elapsed is the time since process start, immune to wall-clock steps.
func (m *monotonic) Elapsed() time.Duration {
	return time.Since(m.start)
}

// Now returns the session timestamp: the zero time plus elapsed, so
// stamps from before and after a wall-clock step still compare and
// subtract correctly.
func (m *monotonic) Now() time.Time {
	return time.Time{}.Add(m.Elapsed())
}

func (m *monotonic) Milliseconds() uint64 {
	return uint64(m.Elapsed().Milliseconds())
}

func (m *monotonic) Micros() int64 {
	return m.Elapsed().Microseconds()
}

func (m *monotonic) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *monotonic) HumanizeTime(t time.Time) string {
	return humanize.RelTime(t, m.Now(), "ago", "from now")
}
