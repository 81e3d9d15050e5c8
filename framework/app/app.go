package app

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/proftimer/mlog"
	"go.uber.org/multierr"
)

// 全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var defaultApp = New()

type Module interface {
	OnInit() error // 初始化
	Destroy()      // 销毁
	Run()          // 启动
	Name() string  // 名字
}

func DefaultApp() *App {
	return defaultApp
}

// App 中的 modules 在 Run 之后不能变更
type App struct {
	mods  []Module
	inits int // 已初始化的模块数
	state atomic.Int32
	sig   chan os.Signal
	wg    sync.WaitGroup
}

func New() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

func (app *App) GetState() int32 {
	return app.state.Load()
}

func (app *App) start(mods ...Module) error {
	if !app.state.CompareAndSwap(AppStateNone, AppStateInit) || len(app.mods) != 0 {
		return fmt.Errorf("app cannot start twice")
	}
	mlog.Info("app starting up")
	app.mods = mods
	// 初始化失败时, 已初始化的模块逆序销毁
	for _, m := range app.mods {
		if err := m.OnInit(); err != nil {
			err = fmt.Errorf("module %s init: %w", m.Name(), err)
			return multierr.Append(err, app.destroyInited())
		}
		app.inits++
	}
	for _, m := range app.mods {
		app.wg.Add(1)
		go run(m, &app.wg)
	}
	app.state.Store(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) stop() error {
	if app.GetState() != AppStateRun {
		return nil
	}
	mlog.Info("app stop begin")
	app.state.Store(AppStateStop)
	err := app.destroyInited()
	app.wg.Wait()
	app.state.Store(AppStateNone)
	mlog.Info("app stopped")
	return err
}

// 先进后出
func (app *App) destroyInited() (err error) {
	for i := app.inits - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.Name())
		err = multierr.Append(err, destroy(m))
	}
	app.inits = 0
	app.state.Store(AppStateNone)
	return err
}

func run(m Module, wg *sync.WaitGroup) {
	defer wg.Done()
	m.Run()
}

func destroy(m Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", m.Name(), r, debug.Stack())
			err = fmt.Errorf("module %s destroy panic: %v", m.Name(), r)
		}
	}()
	m.Destroy()
	return nil
}

// Run 初始化并启动所有模块, 阻塞到收到退出信号后逆序销毁
func (app *App) Run(mods ...Module) error {
	if err := app.start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	for {
		sig := <-app.sig
		mlog.Infof("closing down (signal: %v)", sig)
		if sig != syscall.SIGHUP {
			break
		}
	}
	return app.stop()
}

func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
