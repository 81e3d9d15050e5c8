package timer

import (
	"sync/atomic"
	"time"

	"github.com/fixkme/proftimer/errs"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/ostimer"
	"github.com/fixkme/proftimer/util"
	"go.uber.org/multierr"
)

// Callback receives the number of expirations accumulated since the last
// delivery. It runs on the owning executor, outside any lock, and may create
// or destroy timers.
type Callback func(eventCount int64, userData any)

const (
	stateNone      int32 = iota
	stateBroken          // registered, OS timer creation failed
	stateValid           // registered, OS timer created
	stateDestroyed       // deregistered
)

type Timer struct {
	id       ID
	state    atomic.Int32
	running  atomic.Bool
	os       ostimer.Timer
	callback Callback
	userData any
	thread   *Thread // set once at creation
}

func (t *Timer) ID() ID {
	return t.id
}

// Valid reports whether the timer was created and is not yet destroyed.
func (t *Timer) Valid() bool {
	return t.state.Load() == stateValid
}

func (t *Timer) Running() bool {
	return t.running.Load()
}

// NewTimer registers a timer owned by th and creates its OS timer.
//
// If the ID space is exhausted it returns a nil Timer. If only the OS timer
// could not be created it returns the registered but invalid Timer together
// with the error; the caller must still Destroy it.
func (th *Thread) NewTimer(kind ostimer.Kind, cb Callback, userData any) (*Timer, error) {
	if err := th.checkOwner("init"); err != nil {
		return nil, err
	}
	if th.closed {
		return nil, errs.NoThread.Printf("thread %s is shut down", th.name)
	}
	t := &Timer{
		callback: cb,
		userData: userData,
		thread:   th,
	}
	id, err := th.module.allocateAndRegister(t)
	if err != nil {
		mlog.Warnf("timer init on thread %s: %v", th.name, err)
		return nil, err
	}

	th.mu.Lock()
	th.timers[id] = t
	th.mu.Unlock()
	t.state.Store(stateBroken)

	osTimer, err := th.module.backend.Create(kind, uint64(id), th.module.notify)
	if err != nil {
		mlog.Warnf("timer %d create %s timer: %v", id, kind, err)
		return t, errs.OsTimer.Wrap(err).Printf("create timer %d", id)
	}
	t.os = osTimer
	t.state.Store(stateValid)
	return t, nil
}

// Start arms the timer. A zero initial value means "use the period"; if both
// are zero the timer is not started. Negative durations count as zero.
//
// A failed Start leaves a running timer running on its previous schedule,
// since the OS timer is not changed by a rejected arm.
func (t *Timer) Start(period, initial time.Duration) error {
	if !t.Valid() {
		mlog.Warnf("unable to start uninitialised timer %d", t.id)
		return errs.TimerInvalid.Printf("timer %d", t.id)
	}
	period = util.ClampNonNegative(period)
	initial = util.ClampNonNegative(initial)
	if initial == 0 {
		initial = period
	}
	if initial == 0 {
		mlog.Warnf("unable to start timer %d with a value of zero duration and period", t.id)
		return errs.ZeroDuration.Printf("timer %d", t.id)
	}
	if err := t.os.Start(period, initial); err != nil {
		mlog.Warnf("timer %d start: %v", t.id, err)
		return errs.OsTimer.Wrap(err).Printf("start timer %d", t.id)
	}
	t.running.Store(true)
	return nil
}

// Stop disarms the timer. Counts already accumulated are still delivered.
func (t *Timer) Stop() error {
	if !t.Valid() {
		return errs.TimerInvalid.Printf("timer %d", t.id)
	}
	if !t.running.Swap(false) {
		return nil
	}
	if err := t.os.Stop(); err != nil {
		return errs.OsTimer.Wrap(err).Printf("stop timer %d", t.id)
	}
	return nil
}

// Remaining is the time until the next expiration, zero if the timer is not
// valid or not running.
func (t *Timer) Remaining() time.Duration {
	if !t.Valid() || !t.running.Load() {
		return 0
	}
	return t.os.Remaining()
}

// Destroy disarms, deregisters and deletes t. Destroying an already destroyed
// timer does nothing. Destroying a timer owned by another thread, or calling
// from a goroutine other than th's owner, is refused and leaves the timer
// untouched.
func (th *Thread) Destroy(t *Timer) error {
	if t == nil {
		return nil
	}
	if s := t.state.Load(); s == stateNone || s == stateDestroyed {
		return nil
	}
	if err := th.checkOwner("destroy"); err != nil {
		return err
	}
	if t.thread != th {
		mlog.Warnf("cannot destroy timer %d belonging to thread %s from thread %s", t.id, t.thread.name, th.name)
		return errs.WrongThread.Printf("timer %d", t.id)
	}
	return th.destroy(t)
}

func (th *Thread) destroy(t *Timer) error {
	var err error
	// does not stop a notification already in flight
	if t.running.Swap(false) {
		err = multierr.Append(err, t.os.Stop())
	}

	// no new notification can find t after this
	th.module.deregister(t.id)
	t.state.Store(stateDestroyed)

	// waits out a notification that found t before deregister
	th.mu.Lock()
	delete(th.events, t.id)
	delete(th.timers, t.id)
	th.mu.Unlock()

	if t.os != nil {
		err = multierr.Append(err, t.os.Delete())
	}
	if err != nil {
		return errs.OsTimer.Wrap(err).Printf("destroy timer %d", t.id)
	}
	return nil
}
