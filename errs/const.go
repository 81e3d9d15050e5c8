package errs

const (
	ErrCode_OK           = 0
	ErrCode_Unknown      = 1
	ErrCode_IdOverflow   = 100 // 定时器ID耗尽
	ErrCode_OsTimer      = 101 // 底层定时器创建/启动失败
	ErrCode_TimerInvalid = 102 // 定时器未初始化或已销毁
	ErrCode_ZeroDuration = 103 // 初始值和周期都为0
	ErrCode_WrongThread  = 104 // 在非所属线程上销毁
	ErrCode_ThreadExists = 105
	ErrCode_NoThread     = 106
	ErrCode_ModuleClosed = 107
	ErrCode_Config       = 200
)

var (
	Unknown      = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	IdOverflow   = CreateCodeError(ErrCode_IdOverflow, "TIMER_ID_OVERFLOW")
	OsTimer      = CreateCodeError(ErrCode_OsTimer, "OS_TIMER_FAILURE")
	TimerInvalid = CreateCodeError(ErrCode_TimerInvalid, "TIMER_INVALID")
	ZeroDuration = CreateCodeError(ErrCode_ZeroDuration, "TIMER_ZERO_DURATION")
	WrongThread  = CreateCodeError(ErrCode_WrongThread, "TIMER_WRONG_THREAD")
	ThreadExists = CreateCodeError(ErrCode_ThreadExists, "THREAD_EXISTS")
	NoThread     = CreateCodeError(ErrCode_NoThread, "NO_THREAD")
	ModuleClosed = CreateCodeError(ErrCode_ModuleClosed, "MODULE_CLOSED")
	Config       = CreateCodeError(ErrCode_Config, "CONFIG_INVALID")
)
