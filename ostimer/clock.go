package ostimer

import (
	"time"
)

// clock returns a monotonic reading of some clock relative to an arbitrary epoch.
type clock func() time.Duration

func realClock() clock {
	anchor := time.Now()
	return func() time.Duration {
		return time.Since(anchor)
	}
}

func clockFor(kind Kind) (clock, error) {
	switch kind {
	case Real:
		return realClock(), nil
	case CPU:
		return cpuClock()
	}
	return nil, ErrUnsupportedClock
}
