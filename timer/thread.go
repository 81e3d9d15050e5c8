package timer

import (
	"sync"

	"github.com/fixkme/proftimer/errs"
	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/util"
	"github.com/rs/xid"
	"go.uber.org/multierr"
)

type threadKey struct {
	m *Module
}

// Thread is the timer state owned by one executor. Its methods, except
// where noted, must be called on the executor goroutine.
type Thread struct {
	name   string
	module *Module
	host   *engine.Executor
	owner  uint64 // goroutine that ran ThreadInit
	closed bool

	mu     sync.Mutex
	events map[ID]int64  // accumulator, written by notifications
	timers map[ID]*Timer // owned timers, written only by the owner
}

// ThreadInit attaches timer state to x. It must run on x's goroutine.
func (m *Module) ThreadInit(x *engine.Executor) (*Thread, error) {
	key := threadKey{m}
	if x.Value(key) != nil {
		return nil, errs.ThreadExists
	}
	th := &Thread{
		name:   xid.New().String(),
		module: m,
		host:   x,
		owner:  util.GoroutineID(),
		events: make(map[ID]int64),
		timers: make(map[ID]*Timer),
	}
	x.SetValue(key, th)
	mlog.Debugf("timer thread %s init", th.name)
	return th, nil
}

// ThreadOf returns the Thread attached to x, or nil.
func (m *Module) ThreadOf(x *engine.Executor) *Thread {
	th, _ := x.Value(threadKey{m}).(*Thread)
	return th
}

func (th *Thread) Name() string {
	return th.name
}

// checkOwner refuses calls made from any goroutine but the owner's.
func (th *Thread) checkOwner(op string) error {
	if gid := util.GoroutineID(); gid != th.owner {
		mlog.Warnf("timer %s on thread %s called from goroutine %d, owner is %d", op, th.name, gid, th.owner)
		return errs.WrongThread.Printf("%s from goroutine %d", op, gid)
	}
	return nil
}

// Shutdown destroys every timer the thread still owns, then drops the
// accumulator. Pending counts are discarded.
func (th *Thread) Shutdown() error {
	if err := th.checkOwner("thread shutdown"); err != nil {
		return err
	}
	if th.closed {
		return nil
	}
	th.closed = true

	var err error
	for _, t := range th.ownedTimers() {
		err = multierr.Append(err, th.destroy(t))
	}

	// waits for a notification still holding the lock
	th.mu.Lock()
	th.events = nil
	th.mu.Unlock()

	th.host.SetValue(threadKey{th.module}, nil)
	mlog.Debugf("timer thread %s shutdown", th.name)
	return err
}

func (th *Thread) ownedTimers() []*Timer {
	ids := th.IDs()
	timers := make([]*Timer, 0, len(ids))
	for _, id := range ids {
		timers = append(timers, th.timers[id])
	}
	return timers
}

// IDs returns the IDs of the timers this thread owns, ascending.
func (th *Thread) IDs() []ID {
	ids := make([]ID, 0, len(th.timers))
	for id := range th.timers {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Pending returns a copy of the accumulated, undelivered counts. It may be
// called from any goroutine.
func (th *Thread) Pending() map[ID]int64 {
	th.mu.Lock()
	defer th.mu.Unlock()
	out := make(map[ID]int64, len(th.events))
	for id, n := range th.events {
		out[id] = n
	}
	return out
}
