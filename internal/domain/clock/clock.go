package clock

import "time"

// Clock interface for time operations (supports testing)
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MockClock implements Clock for testing
type MockClock struct {
	CurrentTime time.Time
}

func (m *MockClock) Now() time.Time {
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Package-level clock variable (defaults to real clock)
var clock Clock = RealClock{}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}

// Today truncates Now to midnight UTC.
func Today() time.Time {
	n := clock.Now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// Set allows tests to inject a mock clock
func Set(c Clock) {
	clock = c
}

// Reset restores the real clock
func Reset() {
	clock = RealClock{}
}
