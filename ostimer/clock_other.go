//go:build !(linux || darwin || freebsd || openbsd)

package ostimer

func cpuClock() (clock, error) {
	return nil, ErrUnsupportedClock
}
