// Package ostimertest provides an ostimer.Backend whose timers fire only when
// a test tells them to.
package ostimertest

import (
	"errors"
	"sync"
	"time"

	"github.com/fixkme/proftimer/ostimer"
)

var ErrInjected = errors.New("ostimertest: injected failure")

type Backend struct {
	mu     sync.Mutex
	timers map[uint64]*Timer

	// FailCreate and FailStart make the next calls fail with ErrInjected.
	FailCreate bool
	FailStart  bool
}

func NewBackend() *Backend {
	return &Backend{timers: make(map[uint64]*Timer)}
}

func (b *Backend) Create(kind ostimer.Kind, token uint64, notify ostimer.NotifyFunc) (ostimer.Timer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate {
		return nil, ErrInjected
	}
	t := &Timer{Kind: kind, Token: token, notify: notify, backend: b}
	b.timers[token] = t
	return t, nil
}

// Timer returns the timer created with token, or nil.
func (b *Backend) Timer(token uint64) *Timer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timers[token]
}

func (b *Backend) failStart() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.FailStart
}

type Timer struct {
	Kind    ostimer.Kind
	Token   uint64
	notify  ostimer.NotifyFunc
	backend *Backend

	fireMu sync.Mutex // serializes Fire against itself and Delete

	mu        sync.Mutex
	armed     bool
	deleted   bool
	period    time.Duration
	initial   time.Duration
	remaining time.Duration
	overrun   int
	starts    int
	stops     int
}

// Fire delivers one notification as the OS would, regardless of the armed
// state, so tests can reproduce notifications racing with Stop and Delete.
func (t *Timer) Fire(overrun int) {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	t.mu.Lock()
	t.overrun = overrun
	t.mu.Unlock()
	t.notify(t.Token)
}

func (t *Timer) Start(period, initial time.Duration) error {
	if t.backend.failStart() {
		return ErrInjected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return ostimer.ErrDeleted
	}
	t.armed = true
	t.period, t.initial, t.remaining = period, initial, initial
	t.starts++
	return nil
}

func (t *Timer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return ostimer.ErrDeleted
	}
	t.armed = false
	t.stops++
	return nil
}

func (t *Timer) Delete() error {
	t.fireMu.Lock()
	defer t.fireMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleted = true
	t.armed = false
	return nil
}

func (t *Timer) Overrun() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overrun
}

func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	return t.remaining
}

// SetRemaining sets what Remaining reports while armed.
func (t *Timer) SetRemaining(d time.Duration) {
	t.mu.Lock()
	t.remaining = d
	t.mu.Unlock()
}

type State struct {
	Armed, Deleted  bool
	Period, Initial time.Duration
	Starts, Stops   int
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Armed:   t.armed,
		Deleted: t.deleted,
		Period:  t.period,
		Initial: t.initial,
		Starts:  t.starts,
		Stops:   t.stops,
	}
}
