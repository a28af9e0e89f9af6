package app

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/ticktimer/mlog"
)

// 全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

type Module interface {
	OnInit() error // 初始化
	Destroy()      // 销毁
	Run()          // 启动, 返回即表示模块结束
	Name() string  // 名字
}

// App 中的 modules 在 Run 之后不能变更
// 收到 SIGINT/SIGTERM, 调用 Stop, 或者任一模块的 Run 返回时, 按注册逆序销毁所有模块
type App struct {
	mods   []Module
	state  int32
	sig    chan os.Signal
	exited chan string
	wg     sync.WaitGroup
	hangup []func()
}

func New() *App {
	return &App{
		sig:    make(chan os.Signal, 1),
		exited: make(chan string, 1),
	}
}

func (app *App) setState(s int32) {
	atomic.StoreInt32(&app.state, s)
}

func (app *App) GetState() int32 {
	return atomic.LoadInt32(&app.state)
}

func (app *App) start(mods ...Module) error {
	if app.GetState() != AppStateNone || len(app.mods) != 0 {
		return fmt.Errorf("app mods cannot start twice")
	}
	if len(mods) == 0 {
		return fmt.Errorf("app has no module")
	}
	mlog.Info("app starting up")
	app.setState(AppStateInit)
	// 模块初始化, 失败时销毁已初始化的
	for i, mi := range mods {
		if err := mi.OnInit(); err != nil {
			for j := i - 1; j >= 0; j-- {
				destroy(mods[j])
			}
			app.setState(AppStateNone)
			return fmt.Errorf("module %s init error: %w", mi.Name(), err)
		}
	}
	app.mods = mods
	// 模块启动
	for _, mi := range app.mods {
		app.wg.Add(1)
		go app.run(mi)
	}
	app.setState(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) stop() {
	if app.GetState() == AppStateStop {
		return
	}
	mlog.Info("app stop begin")
	app.setState(AppStateStop)
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		mi := app.mods[i]
		mlog.Infof("app stop module %s", mi.Name())
		destroy(mi)
	}
	app.wg.Wait()
	app.setState(AppStateNone)
	mlog.Info("app stopped")
}

func (app *App) run(mi Module) {
	defer app.wg.Done()
	mi.Run()
	select {
	case app.exited <- mi.Name():
	default:
	}
}

func destroy(mi Module) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", mi.Name(), r, debug.Stack())
		}
	}()

	mi.Destroy()
}

// OnHangup 收到 SIGHUP 时在 Run 所在协程依次调用, 需在 Run 之前注册
func (app *App) OnHangup(f func()) {
	app.hangup = append(app.hangup, f)
}

func (app *App) onHangup() {
	for _, f := range app.hangup {
		func() {
			defer func() {
				if r := recover(); r != nil {
					mlog.Errorf("app hangup hook panic: %v\n%s", r, debug.Stack())
				}
			}()
			f()
		}()
	}
}

// Run 阻塞直到退出
func (app *App) Run(mods ...Module) error {
	if err := app.start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
loop:
	for {
		select {
		case sig := <-app.sig:
			if sig == syscall.SIGHUP {
				mlog.Info("app hangup")
				app.onHangup()
				continue
			}
			mlog.Infof("app closing down (signal: %v)", sig)
			break loop
		case name := <-app.exited:
			mlog.Infof("app closing down (module %s exited)", name)
			break loop
		}
	}

	app.stop()
	return nil
}

func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
