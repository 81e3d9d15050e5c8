package util

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoroutineID 当前协程id, 解析失败返回0
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false) // 获取当前 goroutine 的调用栈
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
