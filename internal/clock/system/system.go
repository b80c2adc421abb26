// Package system provides news.Clock implementations.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Frozen is a clock stuck at one instant. Replays and tests use it to get
// reproducible update and scrape times.
type Frozen struct {
	At time.Time
}

// Now returns the frozen instant.
func (f Frozen) Now() time.Time {
	return f.At
}
