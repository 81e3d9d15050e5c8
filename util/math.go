package util

import "math"

// AddInt64 溢出时返回边界值和false
func AddInt64(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64, false
	} else if b < 0 && a < math.MinInt64-b {
		return math.MinInt64, false
	}
	return a + b, true
}

// SatAddInt64 饱和加法, 计数类累加用
func SatAddInt64(a, b int64) int64 {
	v, _ := AddInt64(a, b)
	return v
}

// ClampNonNegative 负数按0处理
func ClampNonNegative[T ~int64](v T) T {
	if v < 0 {
		return 0
	}
	return v
}
