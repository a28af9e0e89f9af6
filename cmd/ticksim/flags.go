package main

import "github.com/urfave/cli"

var (
	configFile string
	maxTicks   int64
	intervalMs int
	logLevel   string
	spinLock   bool
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "json config file (defaults and TICKSIM_* env still apply)",
		EnvVar:      "TICKSIM_CONFIG",
		Destination: &configFile,
	},
	cli.Int64Flag{
		Name:        "ticks, n",
		Usage:       "stop after advancing this many ticks, 0 runs until interrupted",
		Destination: &maxTicks,
	},
	cli.IntFlag{
		Name:        "interval-ms, i",
		Usage:       "host loop interval in milliseconds",
		Destination: &intervalMs,
	},
	cli.StringFlag{
		Name:        "log-level, l",
		Usage:       "trace, debug, info, notice, warn, error or fatal",
		Destination: &logLevel,
	},
	cli.BoolFlag{
		Name:        "spin-lock, s",
		Usage:       "guard the scheduler with a spin lock instead of a mutex",
		Destination: &spinLock,
	},
}
