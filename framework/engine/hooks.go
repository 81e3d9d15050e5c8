package engine

import "sync"

// Hook runs on the executor goroutine at a checkpoint after Interrupt.
type Hook func(x *Executor)

// Hooks is a chain of interrupt hooks. The most recently installed hook is
// the head and is responsible for calling the hook it replaced.
type Hooks struct {
	mu   sync.Mutex
	head Hook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

// Install makes hook the head of the chain and returns the previous head,
// which may be nil.
func (h *Hooks) Install(hook Hook) (prev Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev = h.head
	h.head = hook
	return prev
}

// Run calls the head of the chain.
func (h *Hooks) Run(x *Executor) {
	h.mu.Lock()
	hook := h.head
	h.mu.Unlock()
	if hook != nil {
		hook(x)
	}
}
