package engine

import (
	"errors"
	"runtime/debug"

	"github.com/fixkme/proftimer/mlog"
)

var (
	ErrTaskChanFull   = errors.New("task chan is full")
	ErrExecutorClosed = errors.New("executor is closed")
	ErrTaskChanClosed = errors.New("task chan is closed")
)

// taskQueue 任务队列, 只由所属执行器协程消费
type taskQueue struct {
	ChanCb       chan func()
	panicHandler func(r any)
	closed       bool
}

func newTaskQueue(size int) *taskQueue {
	if size < 16 {
		size = 16
	} else if size > 102400 {
		size = 102400
	}

	q := new(taskQueue)
	q.ChanCb = make(chan func(), size)
	q.panicHandler = func(r any) {
		mlog.Errorf("executor task panic: %v\n%s", r, debug.Stack())
	}
	return q
}

func (q *taskQueue) SetPanicHandler(f func(r any)) {
	if f != nil {
		q.panicHandler = f
	}
}

func (q *taskQueue) close() {
	q.closed = true
	close(q.ChanCb)
}

func (q *taskQueue) submitWithResult(f func()) (errCh chan error) {
	errCh = make(chan error, 1)
	call := func() {
		if q.closed {
			errCh <- ErrTaskChanClosed
			return
		}
		defer close(errCh)
		f()
	}
	select {
	case q.ChanCb <- call:
	default:
		errCh <- ErrTaskChanFull
	}
	return
}

func (q *taskQueue) trySubmit(f func()) bool {
	select {
	case q.ChanCb <- f:
		return true
	default:
		return false
	}
}

func (q *taskQueue) mustSubmit(f func()) {
	q.ChanCb <- f
}

// exec 执行并恢复panic
func (q *taskQueue) exec(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			q.panicHandler(r)
		}
	}()

	cb()
}
