package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/fixkme/proftimer/errs"
)

var Config *AppConfig

type AppConfig struct {
	LogConfig   `json:",inline" mapstructure:",inline"`
	TimerConfig `json:",inline" mapstructure:",inline"`
	IsDebug     bool `json:"is_debug" mapstructure:"is_debug"`
}

type LogConfig struct {
	LogPath   string `json:"log_path" mapstructure:"log_path"`
	LogName   string `json:"log_name" mapstructure:"log_name"`
	LogLevel  string `json:"log_level" mapstructure:"log_level"`
	LogStdOut bool   `json:"log_std_out" mapstructure:"log_std_out"`
}

type TimerConfig struct {
	EventType        string `json:"event_type" mapstructure:"event_type"`                 //real 或 cpu
	PeriodMs         int64  `json:"period_ms" mapstructure:"period_ms"`                   //采样周期 毫秒
	InitialMs        int64  `json:"initial_ms" mapstructure:"initial_ms"`                 //首次触发延迟 毫秒, 0表示使用周期
	MaxNotifyThreads int    `json:"max_notify_threads" mapstructure:"max_notify_threads"` //通知协程上限, <=0不限制
	TaskQueueSize    int    `json:"task_queue_size" mapstructure:"task_queue_size"`       //执行器任务队列长度
}

func (c *TimerConfig) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

func (c *TimerConfig) Initial() time.Duration {
	return time.Duration(c.InitialMs) * time.Millisecond
}

func Default() *AppConfig {
	return &AppConfig{
		LogConfig: LogConfig{
			LogName:   "proftimer",
			LogLevel:  "info",
			LogStdOut: true,
		},
		TimerConfig: TimerConfig{
			EventType:     "real",
			PeriodMs:      10,
			TaskQueueSize: 1024,
		},
	}
}

// LoadConfig 先读文件再用环境变量覆盖, configFile为空时只读环境变量
func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	conf := Default()
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile, conf); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(conf); err != nil {
			return err
		}
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	Config = conf
	return nil
}

func loadConfigFromFile(configFile string, conf *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, conf)
}

// LoadEnv 读取 PROFTIMER_* 环境变量
func LoadEnv(conf *AppConfig) error {
	strs := map[string]*string{
		"PROFTIMER_LOG_PATH":   &conf.LogPath,
		"PROFTIMER_LOG_NAME":   &conf.LogName,
		"PROFTIMER_LOG_LEVEL":  &conf.LogLevel,
		"PROFTIMER_EVENT_TYPE": &conf.EventType,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	ints := map[string]*int64{
		"PROFTIMER_PERIOD_MS":  &conf.PeriodMs,
		"PROFTIMER_INITIAL_MS": &conf.InitialMs,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errs.Config.Wrap(err).Printf("%s=%q", key, v)
			}
			*dst = n
		}
	}
	if v, ok := os.LookupEnv("PROFTIMER_MAX_NOTIFY_THREADS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Config.Wrap(err).Printf("PROFTIMER_MAX_NOTIFY_THREADS=%q", v)
		}
		conf.MaxNotifyThreads = n
	}
	if v, ok := os.LookupEnv("PROFTIMER_LOG_STD_OUT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Config.Wrap(err).Printf("PROFTIMER_LOG_STD_OUT=%q", v)
		}
		conf.LogStdOut = b
	}
	return nil
}

func (conf *AppConfig) Validate() error {
	switch conf.EventType {
	case "real", "cpu":
	default:
		return errs.Config.Printf("event_type %q", conf.EventType)
	}
	if conf.PeriodMs < 0 || conf.InitialMs < 0 {
		return errs.Config.Printf("negative period_ms=%d initial_ms=%d", conf.PeriodMs, conf.InitialMs)
	}
	if conf.PeriodMs == 0 && conf.InitialMs == 0 {
		return errs.Config.Print("period_ms and initial_ms are both zero")
	}
	if conf.TaskQueueSize <= 0 {
		conf.TaskQueueSize = 1024
	}
	return nil
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
