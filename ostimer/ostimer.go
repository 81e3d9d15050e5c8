// Package ostimer provides interval timers whose expirations are delivered
// on a notification goroutine that is never the goroutine that armed them.
package ostimer

import (
	"errors"
	"fmt"
	"time"
)

// Kind selects the clock a timer measures.
type Kind int

const (
	Real Kind = iota // monotonic wall clock
	CPU              // process CPU time
)

func (k Kind) String() string {
	switch k {
	case Real:
		return "real"
	case CPU:
		return "cpu"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "real":
		return Real, nil
	case "cpu":
		return CPU, nil
	}
	return Real, fmt.Errorf("ostimer: unknown clock kind %q", s)
}

var (
	ErrDeleted          = errors.New("ostimer: timer deleted")
	ErrUnsupportedClock = errors.New("ostimer: clock not supported on this platform")
)

// NotifyFunc is called once per expiration with the token given to Create.
// Calls for one timer never overlap.
type NotifyFunc func(token uint64)

type Timer interface {
	// Start arms the timer. A zero period makes it one-shot. Re-arming
	// replaces the previous schedule.
	Start(period, initial time.Duration) error
	// Stop disarms the timer. A notification already in flight may still run.
	Stop() error
	// Delete releases the timer and waits for an in-flight notification to
	// return. The notify function is never called after Delete returns.
	// Delete must not be called from the notify function.
	Delete() error
	// Overrun is the number of extra expirations folded into the most
	// recent notification.
	Overrun() int
	// Remaining is the time until the next expiration, zero if disarmed.
	Remaining() time.Duration
}

type Backend interface {
	Create(kind Kind, token uint64, notify NotifyFunc) (Timer, error)
}
