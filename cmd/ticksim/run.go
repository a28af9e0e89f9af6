package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/fixkme/ticktimer/framework/app"
	"github.com/fixkme/ticktimer/framework/config"
	"github.com/fixkme/ticktimer/mlog"
	"github.com/urfave/cli"
)

func run(ctx *cli.Context) error {
	if err := config.LoadConfig(configFile, config.LoadConfigFromEnv); err != nil {
		printRuntimeErr(ctx, "run", "load_config", err)
		return err
	}
	conf := config.Config
	// 命令行参数优先
	if ctx.IsSet("ticks") {
		conf.MaxTicks = maxTicks
	}
	if ctx.IsSet("interval-ms") {
		conf.TickIntervalMs = intervalMs
	}
	if ctx.IsSet("log-level") {
		conf.LogLevel = logLevel
	}
	if ctx.IsSet("spin-lock") {
		conf.SpinLock = spinLock
	}
	if err := conf.Validate(); err != nil {
		printRuntimeErr(ctx, "run", "validate", err)
		return err
	}

	logCtx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()
	if err := setupLogger(logCtx, wg, conf); err != nil {
		printRuntimeErr(ctx, "run", "logger", err)
		return err
	}
	mlog.Debugf("config %s", conf.JsonFormat())

	sim := newSimModule(conf)
	a := app.New()
	// kill -HUP 提前清掉所有npc定时器
	a.OnHangup(func() {
		if _, err := sim.Despawn("npc/"); err != nil {
			mlog.Warnf("despawn on hangup: %v", err)
		}
	})
	if err := a.Run(sim); err != nil {
		printRuntimeErr(ctx, "run", "app", err)
		return err
	}

	st := sim.Stats()
	fmt.Printf("domain %s: %d ticks advanced, final tick %d\n", st.DomainName, st.Ticks, st.FinalTick)
	fmt.Printf("failures %d, despawned %d, still pending %d\n", st.Failures, st.Despawned, st.Pending)
	return nil
}

func setupLogger(ctx context.Context, wg *sync.WaitGroup, conf *config.AppConfig) error {
	level, err := mlog.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	if conf.LogPath == "" {
		return mlog.UseStdLogger(level)
	}
	return mlog.UseDefaultLogger(ctx, wg, conf.LogPath, conf.LogName, level, conf.LogStdOut)
}
