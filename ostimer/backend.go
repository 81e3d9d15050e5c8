package ostimer

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/proftimer/mlog"
	"github.com/panjf2000/ants/v2"
)

const (
	minCPUPoll = 50 * time.Microsecond
)

type options struct {
	maxThreads int
}

type Option func(*options)

// WithMaxThreads bounds the number of live notification goroutines, one per
// created timer. Create fails once the bound is reached. n <= 0 means no bound.
func WithMaxThreads(n int) Option {
	return func(o *options) {
		o.maxThreads = n
	}
}

// GoBackend runs each timer's handler on its own goroutine taken from a pool.
type GoBackend struct {
	pool *ants.Pool
}

type antsLogger struct{}

func (antsLogger) Printf(format string, args ...any) {
	mlog.Errorf("ostimer pool: "+format, args...)
}

func NewBackend(opts ...Option) (*GoBackend, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	size := o.maxThreads
	if size <= 0 {
		size = -1
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithLogger(antsLogger{}),
		ants.WithPanicHandler(func(r any) {
			mlog.Errorf("ostimer notify panic: %v\n%s", r, debug.Stack())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &GoBackend{pool: pool}, nil
}

func (b *GoBackend) Create(kind Kind, token uint64, notify NotifyFunc) (Timer, error) {
	now, err := clockFor(kind)
	if err != nil {
		return nil, err
	}
	t := &goTimer{
		kind:   kind,
		token:  token,
		notify: notify,
		now:    now,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err = b.pool.Submit(t.run); err != nil {
		return nil, err
	}
	return t, nil
}

// Running is the number of live notification goroutines.
func (b *GoBackend) Running() int {
	return b.pool.Running()
}

// Release frees the pool. Timers must be deleted first.
func (b *GoBackend) Release() {
	b.pool.Release()
}

type goTimer struct {
	kind   Kind
	token  uint64
	notify NotifyFunc
	now    clock

	mu       sync.Mutex
	armed    bool
	deleted  bool
	period   time.Duration
	deadline time.Duration
	gen      uint64

	overrun atomic.Int64
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func (t *goTimer) kick() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *goTimer) Start(period, initial time.Duration) error {
	if initial <= 0 {
		// make sure the timer is armed
		initial = 1
	}
	if period < 0 {
		period = 0
	}
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return ErrDeleted
	}
	t.armed = true
	t.period = period
	t.deadline = t.now() + initial
	t.gen++
	t.mu.Unlock()
	t.overrun.Store(0)
	t.kick()
	return nil
}

func (t *goTimer) Stop() error {
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return ErrDeleted
	}
	t.armed = false
	t.gen++
	t.mu.Unlock()
	t.kick()
	return nil
}

func (t *goTimer) Delete() error {
	t.mu.Lock()
	if t.deleted {
		t.mu.Unlock()
		return nil
	}
	t.deleted = true
	t.armed = false
	t.gen++
	t.mu.Unlock()
	close(t.quit)
	<-t.done
	return nil
}

func (t *goTimer) Overrun() int {
	return int(t.overrun.Load())
}

func (t *goTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	if d := t.deadline - t.now(); d > 0 {
		return d
	}
	return 0
}

// sleepFor converts a distance on the timer's clock into a wall-clock sleep.
// CPU time can advance up to GOMAXPROCS times faster than wall time.
func (t *goTimer) sleepFor(wait time.Duration) time.Duration {
	if t.kind != CPU {
		return wait
	}
	wait /= time.Duration(runtime.GOMAXPROCS(0))
	if wait < minCPUPoll {
		wait = minCPUPoll
	}
	return wait
}

// expire advances the schedule past now and records the overrun. It reports
// false if the timer was re-armed or stopped since gen was read.
func (t *goTimer) expire(gen uint64, now time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || !t.armed {
		return false
	}
	var overrun int64
	if t.period > 0 {
		missed := (now - t.deadline) / t.period
		overrun = int64(missed)
		t.deadline += (missed + 1) * t.period
	} else {
		t.armed = false
	}
	t.overrun.Store(overrun)
	return true
}

func (t *goTimer) run() {
	defer close(t.done)
	sleeper := time.NewTimer(time.Hour)
	stopSleeper := func() {
		if !sleeper.Stop() {
			select {
			case <-sleeper.C:
			default:
			}
		}
	}
	stopSleeper()
	defer sleeper.Stop()

	for {
		t.mu.Lock()
		armed, deadline, gen := t.armed, t.deadline, t.gen
		t.mu.Unlock()

		if !armed {
			select {
			case <-t.wake:
				continue
			case <-t.quit:
				return
			}
		}

		now := t.now()
		if wait := deadline - now; wait > 0 {
			sleeper.Reset(t.sleepFor(wait))
			select {
			case <-t.wake:
				stopSleeper()
			case <-t.quit:
				return
			case <-sleeper.C:
			}
			continue
		}

		if t.expire(gen, now) {
			t.notify(t.token)
		}
		select {
		case <-t.quit:
			return
		default:
		}
	}
}
