package timer

import (
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/fixkme/proftimer/errs"
	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/ostimer"
	"github.com/fixkme/proftimer/ostimer/ostimertest"
	"github.com/google/go-cmp/cmp"
)

func TestMain(m *testing.M) {
	mlog.UseStdLogger(mlog.WarnLevel)
	os.Exit(m.Run())
}

type fixture struct {
	backend *ostimertest.Backend
	hooks   *engine.Hooks
	module  *Module
	x       *engine.Executor
	th      *Thread
}

// newFixture wires a module to a fake backend. The test goroutine plays the
// owning executor and calls Checkpoint itself.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: ostimertest.NewBackend(),
		hooks:   engine.NewHooks(),
	}
	f.module = ModuleInit(f.hooks, f.backend)
	f.x = engine.NewExecutor(f.hooks, 16)
	th, err := f.module.ThreadInit(f.x)
	if err != nil {
		t.Fatal(err)
	}
	f.th = th
	return f
}

func (f *fixture) newTimer(t *testing.T, cb Callback) (*Timer, *ostimertest.Timer) {
	t.Helper()
	tm, err := f.th.NewTimer(ostimer.Real, cb, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tm, f.backend.Timer(uint64(tm.ID()))
}

func (f *fixture) checkTables(t *testing.T, want ...ID) {
	t.Helper()
	if want == nil {
		want = []ID{}
	}
	if diff := cmp.Diff(want, f.module.IDs()); diff != "" {
		t.Errorf("global registry (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, f.th.IDs()); diff != "" {
		t.Errorf("thread table (-want +got):\n%s", diff)
	}
}

func noop(int64, any) {}

func TestRegistryTracksLifecycle(t *testing.T) {
	f := newFixture(t)
	a, _ := f.newTimer(t, noop)
	b, _ := f.newTimer(t, noop)
	c, _ := f.newTimer(t, noop)
	f.checkTables(t, a.ID(), b.ID(), c.ID())

	if err := b.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	f.checkTables(t, a.ID(), b.ID(), c.ID())

	if err := f.th.Destroy(b); err != nil {
		t.Fatal(err)
	}
	f.checkTables(t, a.ID(), c.ID())

	d, _ := f.newTimer(t, noop)
	f.checkTables(t, a.ID(), c.ID(), d.ID())

	for _, tm := range []*Timer{a, c, d} {
		if err := f.th.Destroy(tm); err != nil {
			t.Fatal(err)
		}
	}
	f.checkTables(t)
	if f.module.Lookup(a.ID()) != nil {
		t.Fatal("destroyed timer still found by Lookup")
	}
}

func TestIDsAreNotReused(t *testing.T) {
	f := newFixture(t)
	var last ID
	for i := 0; i < 100; i++ {
		tm, _ := f.newTimer(t, noop)
		if tm.ID() == 0 || tm.ID() <= last {
			t.Fatalf("id %d after %d", tm.ID(), last)
		}
		last = tm.ID()
		if err := f.th.Destroy(tm); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIDOverflow(t *testing.T) {
	f := newFixture(t)
	keep, _ := f.newTimer(t, noop)
	f.module.nextID = math.MaxUint64

	last, _ := f.newTimer(t, noop)
	if last.ID() != math.MaxUint64 {
		t.Fatalf("id = %d", last.ID())
	}
	for i := 0; i < 2; i++ {
		tm, err := f.th.NewTimer(ostimer.Real, noop, nil)
		if !errors.Is(err, errs.IdOverflow) {
			t.Fatalf("NewTimer after wrap err = %v", err)
		}
		if tm != nil {
			t.Fatal("NewTimer returned a timer on overflow")
		}
		f.checkTables(t, keep.ID(), last.ID())
	}
}

func TestStartZeroDuration(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)

	if err := tm.Start(0, 0); !errors.Is(err, errs.ZeroDuration) {
		t.Fatalf("Start(0, 0) = %v", err)
	}
	if err := tm.Start(-time.Second, -time.Second); !errors.Is(err, errs.ZeroDuration) {
		t.Fatalf("Start(-1s, -1s) = %v", err)
	}
	if tm.Running() || ft.State().Starts != 0 {
		t.Fatal("timer armed with zero duration")
	}

	if err := tm.Start(7*time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	want := ostimertest.State{Armed: true, Period: 7 * time.Millisecond, Initial: 7 * time.Millisecond, Starts: 1}
	if diff := cmp.Diff(want, ft.State()); diff != "" {
		t.Fatalf("os timer state (-want +got):\n%s", diff)
	}
	if !tm.Running() {
		t.Fatal("timer not running")
	}
}

func TestStartInvalid(t *testing.T) {
	f := newFixture(t)
	tm, _ := f.newTimer(t, noop)
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
	if err := tm.Start(time.Millisecond, time.Millisecond); !errors.Is(err, errs.TimerInvalid) {
		t.Fatalf("Start after Destroy = %v", err)
	}
	if err := tm.Stop(); !errors.Is(err, errs.TimerInvalid) {
		t.Fatalf("Stop after Destroy = %v", err)
	}
}

func TestOSCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.FailCreate = true
	tm, err := f.th.NewTimer(ostimer.Real, noop, nil)
	if !errors.Is(err, errs.OsTimer) || !errors.Is(err, ostimertest.ErrInjected) {
		t.Fatalf("NewTimer err = %v", err)
	}
	if tm == nil {
		t.Fatal("failed timer not returned for cleanup")
	}
	if tm.Valid() {
		t.Fatal("failed timer reported valid")
	}
	f.checkTables(t, tm.ID())
	if err := tm.Start(time.Millisecond, 0); !errors.Is(err, errs.TimerInvalid) {
		t.Fatalf("Start on failed timer = %v", err)
	}
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
	f.checkTables(t)
}

func TestOSStartFailure(t *testing.T) {
	f := newFixture(t)
	tm, _ := f.newTimer(t, noop)
	f.backend.FailStart = true
	if err := tm.Start(time.Millisecond, 0); !errors.Is(err, errs.OsTimer) {
		t.Fatalf("Start err = %v", err)
	}
	if tm.Running() {
		t.Fatal("running after failed start")
	}
}

func TestAccumulatedCountsDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	var deliveries []int64
	tm, ft := f.newTimer(t, func(n int64, _ any) { deliveries = append(deliveries, n) })
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}

	overruns := []int{0, 2, 0, 5, 1}
	want := int64(0)
	for _, o := range overruns {
		ft.Fire(o)
		want += int64(o) + 1
	}
	if !f.x.Interrupted() {
		t.Fatal("interrupt flag not raised")
	}
	if diff := cmp.Diff(map[ID]int64{tm.ID(): want}, f.th.Pending()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}

	f.x.Checkpoint()
	if diff := cmp.Diff([]int64{want}, deliveries); diff != "" {
		t.Fatalf("deliveries (-want +got):\n%s", diff)
	}
	if len(f.th.Pending()) != 0 {
		t.Fatal("accumulator not emptied by drain")
	}

	f.x.Checkpoint()
	if len(deliveries) != 1 {
		t.Fatalf("checkpoint without interrupt delivered again: %v", deliveries)
	}
}

func TestUserDataPassed(t *testing.T) {
	f := newFixture(t)
	var got any
	tm, err := f.th.NewTimer(ostimer.Real, func(_ int64, data any) { got = data }, "sampler")
	if err != nil {
		t.Fatal(err)
	}
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	f.backend.Timer(uint64(tm.ID())).Fire(0)
	f.x.Checkpoint()
	if got != "sampler" {
		t.Fatalf("user data = %v", got)
	}
}

func TestNotificationDroppedWhenStopped(t *testing.T) {
	f := newFixture(t)
	called := false
	tm, ft := f.newTimer(t, func(int64, any) { called = true })

	// never started
	ft.Fire(0)
	if f.x.Interrupted() || len(f.th.Pending()) != 0 {
		t.Fatal("notification for an unstarted timer recorded")
	}

	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	if err := tm.Stop(); err != nil {
		t.Fatal(err)
	}
	ft.Fire(3)
	if f.x.Interrupted() || len(f.th.Pending()) != 0 {
		t.Fatal("notification for a stopped timer recorded")
	}
	f.x.Checkpoint()
	if called {
		t.Fatal("callback ran for a stopped timer")
	}
	if !tm.Valid() || tm.Running() {
		t.Fatalf("after Stop: valid=%v running=%v", tm.Valid(), tm.Running())
	}
}

func TestDestroyFromOtherThread(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}

	other, err := f.module.ThreadInit(engine.NewExecutor(f.hooks, 16))
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Destroy(tm); !errors.Is(err, errs.WrongThread) {
		t.Fatalf("Destroy from other thread = %v", err)
	}
	if !tm.Valid() || !tm.Running() {
		t.Fatalf("timer modified: valid=%v running=%v", tm.Valid(), tm.Running())
	}
	if st := ft.State(); st.Deleted || !st.Armed {
		t.Fatalf("os timer modified: %+v", st)
	}
	f.checkTables(t, tm.ID())

	ft.Fire(0)
	if diff := cmp.Diff(map[ID]int64{tm.ID(): 1}, f.th.Pending()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}
}

func TestForeignGoroutineRefused(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}

	type result struct {
		timer       *Timer
		initErr     error
		destroyErr  error
		shutdownErr error
	}
	done := make(chan result)
	go func() {
		var r result
		r.timer, r.initErr = f.th.NewTimer(ostimer.Real, noop, nil)
		r.destroyErr = f.th.Destroy(tm)
		r.shutdownErr = f.th.Shutdown()
		done <- r
	}()
	r := <-done

	if r.timer != nil || !errors.Is(r.initErr, errs.WrongThread) {
		t.Fatalf("NewTimer from foreign goroutine = %v, %v", r.timer, r.initErr)
	}
	if !errors.Is(r.destroyErr, errs.WrongThread) {
		t.Fatalf("Destroy from foreign goroutine = %v", r.destroyErr)
	}
	if !errors.Is(r.shutdownErr, errs.WrongThread) {
		t.Fatalf("Shutdown from foreign goroutine = %v", r.shutdownErr)
	}
	if !tm.Valid() || !tm.Running() {
		t.Fatalf("timer modified: valid=%v running=%v", tm.Valid(), tm.Running())
	}
	if st := ft.State(); st.Deleted || !st.Armed {
		t.Fatalf("os timer modified: %+v", st)
	}
	f.checkTables(t, tm.ID())

	// the owner still can
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
	f.checkTables(t)
}

func TestRestartRunningTimer(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	if err := tm.Start(5*time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	if err := tm.Start(8*time.Millisecond, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	want := ostimertest.State{Armed: true, Period: 8 * time.Millisecond, Initial: 2 * time.Millisecond, Starts: 2}
	if diff := cmp.Diff(want, ft.State()); diff != "" {
		t.Fatalf("after re-arm (-want +got):\n%s", diff)
	}

	// a rejected re-arm keeps the previous schedule running
	f.backend.FailStart = true
	if err := tm.Start(time.Millisecond, 0); !errors.Is(err, errs.OsTimer) {
		t.Fatalf("failed re-arm = %v", err)
	}
	if !tm.Running() {
		t.Fatal("failed re-arm cleared running")
	}
	if diff := cmp.Diff(want, ft.State()); diff != "" {
		t.Fatalf("after failed re-arm (-want +got):\n%s", diff)
	}
	if err := tm.Start(0, 0); !errors.Is(err, errs.ZeroDuration) || !tm.Running() {
		t.Fatalf("zero re-arm = %v, running=%v", err, tm.Running())
	}

	ft.Fire(0)
	if diff := cmp.Diff(map[ID]int64{tm.ID(): 1}, f.th.Pending()); diff != "" {
		t.Fatalf("pending (-want +got):\n%s", diff)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	ft.Fire(0)
	for i := 0; i < 3; i++ {
		if err := f.th.Destroy(tm); err != nil {
			t.Fatalf("Destroy #%d = %v", i, err)
		}
	}
	if st := ft.State(); !st.Deleted || st.Stops != 1 {
		t.Fatalf("os timer state %+v", st)
	}
	if len(f.th.Pending()) != 0 {
		t.Fatal("accumulator entry left after Destroy")
	}
	if f.th.Destroy(nil) != nil {
		t.Fatal("Destroy(nil) failed")
	}
	f.checkTables(t)
}

func TestStrayNotificationAfterDestroy(t *testing.T) {
	f := newFixture(t)
	called := false
	tm, ft := f.newTimer(t, func(int64, any) { called = true })
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
	ft.Fire(0)
	f.module.notify(uint64(tm.ID()))
	f.module.notify(12345)
	if f.x.Interrupted() || len(f.th.Pending()) != 0 {
		t.Fatal("stray notification recorded")
	}
	f.x.Checkpoint()
	if called {
		t.Fatal("callback ran after Destroy")
	}
}

func TestCallbackDestroysLaterTimer(t *testing.T) {
	f := newFixture(t)
	var order []string
	var second *Timer
	first, ft1 := f.newTimer(t, func(int64, any) {
		order = append(order, "first")
		if err := f.th.Destroy(second); err != nil {
			t.Error(err)
		}
	})
	second, ft2 := f.newTimer(t, func(int64, any) { order = append(order, "second") })
	for _, tm := range []*Timer{first, second} {
		if err := tm.Start(time.Millisecond, 0); err != nil {
			t.Fatal(err)
		}
	}
	ft2.Fire(0)
	ft1.Fire(0)
	f.x.Checkpoint()
	if diff := cmp.Diff([]string{"first"}, order); diff != "" {
		t.Fatalf("deliveries (-want +got):\n%s", diff)
	}
	f.checkTables(t, first.ID())
}

func TestCallbackCreatesTimer(t *testing.T) {
	f := newFixture(t)
	var created *Timer
	tm, ft := f.newTimer(t, func(int64, any) {
		var err error
		created, err = f.th.NewTimer(ostimer.Real, noop, nil)
		if err != nil {
			t.Error(err)
		}
	})
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	ft.Fire(0)
	f.x.Checkpoint()
	if created == nil {
		t.Fatal("callback did not create a timer")
	}
	f.checkTables(t, tm.ID(), created.ID())
}

func TestCallbackPanicDoesNotLoseOthers(t *testing.T) {
	f := newFixture(t)
	got := int64(0)
	a, fa := f.newTimer(t, func(int64, any) { panic("boom") })
	b, fb := f.newTimer(t, func(n int64, _ any) { got = n })
	for _, tm := range []*Timer{a, b} {
		if err := tm.Start(time.Millisecond, 0); err != nil {
			t.Fatal(err)
		}
	}
	fa.Fire(0)
	fb.Fire(4)
	f.x.Checkpoint()
	if got != 5 {
		t.Fatalf("second callback got %d", got)
	}
}

func TestChainsToPreviousHook(t *testing.T) {
	hooks := engine.NewHooks()
	var order []string
	hooks.Install(func(*engine.Executor) { order = append(order, "previous") })

	backend := ostimertest.NewBackend()
	m := ModuleInit(hooks, backend)
	x := engine.NewExecutor(hooks, 16)
	th, err := m.ThreadInit(x)
	if err != nil {
		t.Fatal(err)
	}
	tm, err := th.NewTimer(ostimer.CPU, func(int64, any) { order = append(order, "timer") }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	backend.Timer(uint64(tm.ID())).Fire(0)
	x.Checkpoint()
	if diff := cmp.Diff([]string{"timer", "previous"}, order); diff != "" {
		t.Fatalf("hook order (-want +got):\n%s", diff)
	}

	// executors without timer state still reach the previous hook
	order = nil
	bare := engine.NewExecutor(hooks, 16)
	bare.Interrupt()
	bare.Checkpoint()
	if diff := cmp.Diff([]string{"previous"}, order); diff != "" {
		t.Fatalf("bare executor (-want +got):\n%s", diff)
	}
}

func TestRemaining(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	ft.SetRemaining(3 * time.Millisecond)
	if d := tm.Remaining(); d != 0 {
		t.Fatalf("Remaining before Start = %v", d)
	}
	if err := tm.Start(10*time.Millisecond, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	ft.SetRemaining(3 * time.Millisecond)
	if d := tm.Remaining(); d != 3*time.Millisecond {
		t.Fatalf("Remaining = %v", d)
	}
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
	if d := tm.Remaining(); d != 0 {
		t.Fatalf("Remaining after Destroy = %v", d)
	}
}

func TestThreadLifecycle(t *testing.T) {
	f := newFixture(t)
	if _, err := f.module.ThreadInit(f.x); !errors.Is(err, errs.ThreadExists) {
		t.Fatalf("second ThreadInit = %v", err)
	}
	if f.module.ThreadOf(f.x) != f.th {
		t.Fatal("ThreadOf mismatch")
	}

	var fakes []*ostimertest.Timer
	for i := 0; i < 3; i++ {
		tm, ft := f.newTimer(t, noop)
		if err := tm.Start(time.Millisecond, 0); err != nil {
			t.Fatal(err)
		}
		ft.Fire(0)
		fakes = append(fakes, ft)
	}
	if err := f.th.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if f.module.Count() != 0 {
		t.Fatalf("registry has %d timers after thread shutdown", f.module.Count())
	}
	for _, ft := range fakes {
		if !ft.State().Deleted {
			t.Fatalf("os timer %d not deleted", ft.Token)
		}
		ft.Fire(0)
	}
	if f.module.ThreadOf(f.x) != nil {
		t.Fatal("thread still attached to executor")
	}
	if _, err := f.th.NewTimer(ostimer.Real, noop, nil); !errors.Is(err, errs.NoThread) {
		t.Fatalf("NewTimer after Shutdown = %v", err)
	}
	if err := f.th.Shutdown(); err != nil {
		t.Fatal(err)
	}

	// the executor can be given fresh state
	if _, err := f.module.ThreadInit(f.x); err != nil {
		t.Fatal(err)
	}
}

func TestModuleShutdown(t *testing.T) {
	f := newFixture(t)
	tm, ft := f.newTimer(t, noop)
	if err := tm.Start(time.Millisecond, 0); err != nil {
		t.Fatal(err)
	}
	f.module.Shutdown()
	ft.Fire(0)
	if len(f.th.Pending()) != 0 {
		t.Fatal("notification recorded after module shutdown")
	}
	if _, err := f.th.NewTimer(ostimer.Real, noop, nil); !errors.Is(err, errs.ModuleClosed) {
		t.Fatalf("NewTimer after module shutdown = %v", err)
	}
	if err := f.th.Destroy(tm); err != nil {
		t.Fatal(err)
	}
}
