// Package timer keeps the process-wide registry of profiling timers and
// delivers their expirations to the executor that owns each timer.
//
// Two locks are involved. Module.mu guards the registry and ID allocation;
// Thread.mu guards one executor's accumulator. When both are held, Module.mu
// is always taken first.
package timer

import (
	"sort"
	"sync"

	"github.com/fixkme/proftimer/errs"
	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/ostimer"
)

// ID identifies a timer across the process. Zero is never a valid ID.
type ID uint64

type Module struct {
	mu      sync.Mutex
	timers  map[ID]*Timer
	nextID  ID // 0 after the counter wrapped
	closed  bool
	backend ostimer.Backend

	prevInterrupt engine.Hook
}

// ModuleInit creates the registry and installs the interrupt handler at the
// head of hooks. The handler calls whatever hook was installed before it.
func ModuleInit(hooks *engine.Hooks, backend ostimer.Backend) *Module {
	m := &Module{
		timers:  make(map[ID]*Timer),
		nextID:  1,
		backend: backend,
	}
	m.prevInterrupt = hooks.Install(m.interrupt)
	return m
}

// Shutdown drops the registry. It waits for any notification holding the
// registry lock; later notifications find nothing and are dropped.
func (m *Module) Shutdown() {
	m.mu.Lock()
	n := len(m.timers)
	m.timers = nil
	m.closed = true
	m.mu.Unlock()
	if n > 0 {
		mlog.Warnf("timer module shutdown with %d live timers", n)
	}
}

func (m *Module) allocateAndRegister(t *Timer) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errs.ModuleClosed
	}
	id := m.nextID
	if id == 0 {
		return 0, errs.IdOverflow
	}
	m.nextID++
	t.id = id
	m.timers[id] = t
	return id, nil
}

// Lookup returns the registered timer with id, or nil once it is destroyed.
func (m *Module) Lookup(id ID) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[id]
}

func (m *Module) deregister(id ID) {
	m.mu.Lock()
	delete(m.timers, id)
	m.mu.Unlock()
}

// Count is the number of registered timers.
func (m *Module) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// IDs returns the registered IDs in ascending order.
func (m *Module) IDs() []ID {
	m.mu.Lock()
	ids := make([]ID, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sortIDs(ids)
	return ids
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
