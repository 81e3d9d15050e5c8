package errs

import (
	"fmt"
	"strings"
)

type CodeError interface {
	error
	Code() int32
	Print(extras ...string) CodeError
	Printf(format string, args ...any) CodeError
	Wrap(cause error) CodeError
	Is(error) bool
	Unwrap() error
}

func CreateCodeError(code int32, desc string) CodeError {
	return &codeError{
		Errno: code, //  错误码数字
		Desc:  desc, //  错误描述字符串, 如：TIMER_ID_OVERFLOW
	}
}

// WrapError 非CodeError的错误归为Unknown, 并保留原始错误
func WrapError(err error) CodeError {
	if err == nil {
		return nil
	}
	x, ok := err.(*codeError)
	if ok {
		return x
	}
	return Unknown.Wrap(err)
}

type codeError struct {
	Errno int32
	Desc  string
	cause error
}

func (e *codeError) Code() int32 {
	return e.Errno
}

func (e *codeError) Error() string {
	if e.cause != nil {
		return e.Desc + ": " + e.cause.Error()
	}
	return e.Desc
}

func (e *codeError) String() string {
	return fmt.Sprintf("errno: %d, desc: %s", e.Errno, e.Error())
}

func (e *codeError) Print(extras ...string) CodeError {
	if len(extras) == 0 {
		return e
	}
	builder := strings.Builder{}
	builder.WriteString(e.Desc)
	for _, extra := range extras {
		builder.WriteByte(',')
		builder.WriteString(extra)
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  builder.String(),
		cause: e.cause,
	}
}

func (e *codeError) Printf(format string, args ...any) CodeError {
	if len(format) == 0 {
		return e
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  fmt.Sprintf(e.Desc+","+format, args...),
		cause: e.cause,
	}
}

// Wrap 附加底层错误, 错误码不变
func (e *codeError) Wrap(cause error) CodeError {
	if cause == nil {
		return e
	}
	return &codeError{
		Errno: e.Errno,
		Desc:  e.Desc,
		cause: cause,
	}
}

func (e *codeError) Unwrap() error {
	return e.cause
}

func (e *codeError) Is(target error) bool {
	if x, ok := target.(*codeError); ok {
		return x.Errno == e.Errno
	}
	return false
}
