package challenges

import "time"

// Clock supplies the current time to lifecycle operations. Every time-window
// check compares against a single Now() value taken at the start of the
// operation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
