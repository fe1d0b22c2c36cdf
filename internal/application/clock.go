package application

import "time"

// Clock abstraction so services are testable with a fixed time
type Clock interface {
	Now() time.Time
}

// SystemClock default implementation, uses time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
