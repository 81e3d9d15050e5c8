package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Executor is the owner of thread-local state: one goroutine runs its tasks
// and its interrupt checkpoints. Interrupt may be called from any goroutine;
// Checkpoint, Value and SetValue only from the goroutine running the executor.
type Executor struct {
	*taskQueue
	hooks       *Hooks
	closeSig    chan struct{}
	isClosed    bool
	mutex       sync.RWMutex
	interrupt   atomic.Bool
	wake        chan struct{}
	locals      map[any]any
	beforeClose func()
}

func NewExecutor(hooks *Hooks, taskChSize int) *Executor {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Executor{
		taskQueue: newTaskQueue(taskChSize),
		hooks:     hooks,
		closeSig:  make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Init 设置关闭前回调, 在执行器协程中调用
func (x *Executor) Init(beforeClose func()) {
	x.beforeClose = beforeClose
}

func (x *Executor) Hooks() *Hooks {
	return x.hooks
}

func (x *Executor) Run() {
	defer x.onClose()

	for {
		select {
		case <-x.closeSig:
			return
		case cb := <-x.ChanCb:
			x.exec(cb)
			x.Checkpoint()
		case <-x.wake:
			x.Checkpoint()
		}
	}
}

// Interrupt raises the interrupt flag and wakes the executor.
func (x *Executor) Interrupt() {
	x.interrupt.Store(true)
	select {
	case x.wake <- struct{}{}:
	default:
	}
}

func (x *Executor) Interrupted() bool {
	return x.interrupt.Load()
}

// Checkpoint runs the hook chain if the interrupt flag was raised.
func (x *Executor) Checkpoint() {
	if !x.interrupt.CompareAndSwap(true, false) {
		return
	}
	x.exec(func() { x.hooks.Run(x) })
}

func (x *Executor) Value(key any) any {
	return x.locals[key]
}

// SetValue stores executor-local data; a nil value removes the key.
func (x *Executor) SetValue(key, value any) {
	if value == nil {
		delete(x.locals, key)
		return
	}
	if x.locals == nil {
		x.locals = make(map[any]any)
	}
	x.locals[key] = value
}

func (x *Executor) onClose() {
	if x.beforeClose != nil {
		x.exec(x.beforeClose)
	}
	x.mutex.Lock()
	x.taskQueue.close()
	x.mutex.Unlock()
	for cb := range x.ChanCb {
		x.exec(cb)
	}
	x.Checkpoint()
}

func (x *Executor) Close() {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.isClosed {
		return
	}

	x.isClosed = true
	close(x.closeSig)
}

func (x *Executor) SyncRunFunc(f func()) (err error) {
	x.mutex.RLock()
	if x.isClosed {
		err = ErrExecutorClosed
		x.mutex.RUnlock()
		return
	}

	errCh := x.submitWithResult(f)
	x.mutex.RUnlock()
	err = <-errCh
	return
}

func (x *Executor) CtxRunFunc(ctx context.Context, f func()) (err error) {
	x.mutex.RLock()
	if x.isClosed {
		err = ErrExecutorClosed
		x.mutex.RUnlock()
		return
	}

	errCh := x.submitWithResult(f)
	x.mutex.RUnlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (x *Executor) TryRunFunc(f func()) error {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	if x.isClosed {
		return ErrExecutorClosed
	}

	if !x.trySubmit(f) {
		return ErrTaskChanFull
	}
	return nil
}

func (x *Executor) MustRunFunc(f func()) error {
	x.mutex.RLock()
	defer x.mutex.RUnlock()
	if x.isClosed {
		return ErrExecutorClosed
	}

	x.mustSubmit(f)
	return nil
}
