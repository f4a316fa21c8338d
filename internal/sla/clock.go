package sla

import "time"

// Clock supplies the current instant. Calculators and controllers take a
// Clock instead of reading the system time so tests can pin the instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
