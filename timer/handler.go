package timer

import (
	"runtime/debug"

	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/util"
)

// notify runs on a notification goroutine once per expiration.
func (m *Module) notify(token uint64) {
	id := ID(token)

	m.mu.Lock()
	t := m.timers[id]
	if t == nil || !t.running.Load() {
		// deleted or stopped while the notification was in flight
		m.mu.Unlock()
		mlog.Tracef("timer %d notification dropped", id)
		return
	}

	th := t.thread
	th.mu.Lock()
	if th.events != nil {
		count := int64(t.os.Overrun()) + 1
		th.events[id] = util.SatAddInt64(th.events[id], count)
		th.host.Interrupt()
	}
	th.mu.Unlock()
	m.mu.Unlock()
}

// interrupt is the module's hook on the executor's interrupt chain.
func (m *Module) interrupt(x *engine.Executor) {
	if th := m.ThreadOf(x); th != nil {
		th.drain()
	}
	if m.prevInterrupt != nil {
		m.prevInterrupt(x)
	}
}

// drain delivers the accumulated counts. The accumulator is swapped for an
// empty one under the lock and callbacks run after it is released.
func (th *Thread) drain() {
	var events map[ID]int64
	th.mu.Lock()
	if len(th.events) > 0 {
		events = th.events
		th.events = make(map[ID]int64)
	}
	th.mu.Unlock()
	// events is nil unless it was swapped out
	if events == nil {
		return
	}

	for _, id := range sortedKeys(events) {
		// an earlier callback in this drain may have destroyed it
		t := th.timers[id]
		if t != nil {
			th.dispatch(t, events[id])
		}
	}
}

func (th *Thread) dispatch(t *Timer, count int64) {
	if t.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("timer %d callback panic: %v\n%s", t.id, r, debug.Stack())
		}
	}()
	t.callback(count, t.userData)
}

func sortedKeys(events map[ID]int64) []ID {
	ids := make([]ID, 0, len(events))
	for id := range events {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
