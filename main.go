package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/fixkme/proftimer/framework/app"
	"github.com/fixkme/proftimer/framework/config"
	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/mlog"
	"github.com/fixkme/proftimer/ostimer"
	"github.com/fixkme/proftimer/timer"
)

func main() {
	confFile := flag.String("c", "", "config file (json)")
	flag.Parse()

	if err := config.LoadConfig(*confFile, config.LoadEnv); err != nil {
		log.Fatalf("load config: %v", err)
	}
	conf := config.Config
	if err := setupLog(&conf.LogConfig); err != nil {
		log.Fatalf("setup log: %v", err)
	}
	defer mlog.Sync()
	mlog.Infof("config:\n%s", conf.JsonFormat())

	backend, err := ostimer.NewBackend(ostimer.WithMaxThreads(conf.MaxNotifyThreads))
	if err != nil {
		mlog.Errorf("ostimer backend: %v", err)
		return
	}
	defer backend.Release()

	hooks := engine.NewHooks()
	m := timer.Start(hooks, backend)
	defer m.Shutdown()

	if err := app.DefaultApp().Run(newSampler(m, hooks, &conf.TimerConfig)); err != nil {
		mlog.Errorf("app exit: %v", err)
	}
}

func setupLog(c *config.LogConfig) error {
	level := mlog.ParseLevel(c.LogLevel)
	if c.LogPath == "" {
		return mlog.UseStdLogger(level)
	}
	return mlog.UseFileLogger(filepath.Clean(c.LogPath), c.LogName, level, c.LogStdOut)
}
