// Package system provides the wall clock used to stamp URL records and
// archived articles.
package system

import "time"

// Clock implements archive.Clock. Times are UTC so stored timestamps do not
// depend on the host zone.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
