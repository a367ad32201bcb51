package clock

import "time"

// Clock abstracts time so stores can be driven by a fake clock in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// New returns a Clock backed by time.Now.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}
