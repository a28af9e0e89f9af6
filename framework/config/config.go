package config

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/fixkme/ticktimer/util/errs"
)

var Config *AppConfig

type AppConfig struct {
	AppVersion string `json:"app_version" mapstructure:"app_version"`
	LogConfig  `json:",inline" mapstructure:",inline"`
	TickConfig `json:",inline" mapstructure:",inline"`
	IsDebug    bool `json:"is_debug" mapstructure:"is_debug"`
}

type TickConfig struct {
	Domain         string `json:"domain" mapstructure:"domain"`                     //tick域名字, 空则随机
	TickIntervalMs int    `json:"tick_interval_ms" mapstructure:"tick_interval_ms"` //宿主循环每帧间隔 毫秒
	MaxTicks       int64  `json:"max_ticks" mapstructure:"max_ticks"`               //推进多少帧后退出, 0 不限
	SpinLock       bool   `json:"spin_lock" mapstructure:"spin_lock"`               //调度器用自旋锁
	TaskChanSize   int    `json:"task_chan_size" mapstructure:"task_chan_size"`     //投递到tick协程的任务队列长度
}

type LogConfig struct {
	LogPath   string `json:"log_path" mapstructure:"log_path"`
	LogName   string `json:"log_name" mapstructure:"log_name"`
	LogLevel  string `json:"log_level" mapstructure:"log_level"`
	LogStdOut bool   `json:"log_std_out" mapstructure:"log_std_out"`
}

func Default() *AppConfig {
	return &AppConfig{
		AppVersion: "dev",
		LogConfig: LogConfig{
			LogName:   "ticksim",
			LogLevel:  "info",
			LogStdOut: true,
		},
		TickConfig: TickConfig{
			TickIntervalMs: 50,
			TaskChanSize:   1024,
		},
	}
}

// LoadConfig 先读文件, 再用环境变量覆盖. configFile 为空时只读环境变量
func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	Config = Default()
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(Config); err != nil {
			return err
		}
	}
	return Config.Validate()
}

func loadConfigFromFile(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, Config)
}

// LoadConfigFromEnv 读取 TICKSIM_* 环境变量
func LoadConfigFromEnv(conf *AppConfig) error {
	if v, ok := os.LookupEnv("TICKSIM_DOMAIN"); ok {
		conf.Domain = v
	}
	if v, ok := os.LookupEnv("TICKSIM_LOG_LEVEL"); ok {
		conf.LogLevel = v
	}
	if v, ok := os.LookupEnv("TICKSIM_LOG_PATH"); ok {
		conf.LogPath = v
	}
	if v, ok := os.LookupEnv("TICKSIM_TICK_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.InvalidConfig.Printf("TICKSIM_TICK_INTERVAL_MS=%s", v)
		}
		conf.TickIntervalMs = n
	}
	if v, ok := os.LookupEnv("TICKSIM_MAX_TICKS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errs.InvalidConfig.Printf("TICKSIM_MAX_TICKS=%s", v)
		}
		conf.MaxTicks = n
	}
	return nil
}

func (conf *AppConfig) Validate() error {
	if conf.TickIntervalMs <= 0 {
		return errs.InvalidConfig.Printf("tick_interval_ms=%d", conf.TickIntervalMs)
	}
	if conf.MaxTicks < 0 {
		return errs.InvalidConfig.Printf("max_ticks=%d", conf.MaxTicks)
	}
	if conf.TaskChanSize < 0 {
		return errs.InvalidConfig.Printf("task_chan_size=%d", conf.TaskChanSize)
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
