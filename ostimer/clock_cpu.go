//go:build linux || darwin || freebsd || openbsd

package ostimer

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

func readCPU() (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_PROCESS_CPUTIME_ID, &ts); err != nil {
		return 0, err
	}
	return time.Duration(ts.Nano()), nil
}

// cpuClock reads the process CPU clock. Goroutines migrate between threads,
// so the per-thread clock would not follow the work being sampled.
func cpuClock() (clock, error) {
	start, err := readCPU()
	if err != nil {
		return nil, err
	}
	var last atomic.Int64
	last.Store(int64(start))
	return func() time.Duration {
		now, err := readCPU()
		if err != nil {
			return time.Duration(last.Load())
		}
		last.Store(int64(now))
		return now
	}, nil
}
