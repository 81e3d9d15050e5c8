package main

import (
	"github.com/fixkme/proftimer/framework/app"
	"github.com/fixkme/proftimer/framework/config"
	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/ostimer"
	"github.com/fixkme/proftimer/timer"
)

// sampler owns one executor with one profiling timer and logs every
// delivered event count.
type sampler struct {
	conf   *config.TimerConfig
	module *timer.Module
	x      *engine.Executor
	th     *timer.Thread
	t      *timer.Timer
	total  int64
}

func newSampler(m *timer.Module, hooks *engine.Hooks, conf *config.TimerConfig) *sampler {
	return &sampler{
		conf:   conf,
		module: m,
		x:      engine.NewExecutor(hooks, conf.TaskQueueSize),
	}
}

func (s *sampler) Name() string {
	return "sampler"
}

func (s *sampler) OnInit() error {
	if _, err := ostimer.ParseKind(s.conf.EventType); err != nil {
		return err
	}
	// 在执行器协程中创建计时器
	return s.x.MustRunFunc(s.setup)
}

func (s *sampler) setup() {
	kind, _ := ostimer.ParseKind(s.conf.EventType)
	th, err := s.module.ThreadInit(s.x)
	if err != nil {
		mlog.Errorf("sampler thread init: %v", err)
		app.DefaultApp().Stop()
		return
	}
	s.th = th
	s.x.Init(s.shutdown)

	// 创建失败时 t 仍需在 shutdown 中销毁
	t, err := th.NewTimer(kind, s.onEvent, nil)
	s.t = t
	if err == nil {
		err = t.Start(s.conf.Period(), s.conf.Initial())
	}
	if err != nil {
		mlog.Errorf("sampler timer: %v", err)
		app.DefaultApp().Stop()
		return
	}
	mlog.Infof("sampler thread %s timer %d started, %s period %v", th.Name(), t.ID(), kind, s.conf.Period())
}

func (s *sampler) onEvent(count int64, _ any) {
	s.total += count
	mlog.Infof("sampler timer %d: %d events, %d total", s.t.ID(), count, s.total)
}

func (s *sampler) shutdown() {
	if err := s.th.Destroy(s.t); err != nil {
		mlog.Warnf("sampler destroy timer: %v", err)
	}
	if err := s.th.Shutdown(); err != nil {
		mlog.Warnf("sampler thread shutdown: %v", err)
	}
	mlog.Infof("sampler stopped, %d events", s.total)
}

func (s *sampler) Run() {
	s.x.Run()
}

func (s *sampler) Destroy() {
	s.x.Close()
}
