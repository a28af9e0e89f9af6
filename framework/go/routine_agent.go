package g

import (
	"context"
	"sync"
	"time"
)

// RoutineAgent 宿主循环: 一个协程里按固定间隔调用 tick 回调, 同时执行其他协程投递过来的函数.
// 其他协程通过 SyncRunFunc 等方法把 Schedule/Cancel 转到这个协程里, 和 tick 串行.
type RoutineAgent struct {
	*Go
	closeSig    chan struct{}
	isClosed    bool
	mutex       sync.RWMutex
	interval    time.Duration
	tickCb      TickCb
	beforeClose func()
}

// TickCb 返回false时停止循环
type TickCb func() bool

func NewRoutineAgent(taskChSize int, interval time.Duration) *RoutineAgent {
	if interval <= 0 {
		interval = time.Millisecond
	}
	a := &RoutineAgent{
		Go:       NewGoChan(taskChSize),
		closeSig: make(chan struct{}),
		interval: interval,
	}
	return a
}

func (a *RoutineAgent) Init(tickCb TickCb, beforeClose func()) {
	a.tickCb = tickCb
	a.beforeClose = beforeClose
}

func (a *RoutineAgent) Run() {
	defer a.onClose()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.closeSig:
			return
		case cb := <-a.Go.ChanCb:
			a.Go.Exec(cb)
		case <-ticker.C:
			if a.tickCb == nil {
				continue
			}
			goon := true
			if err := a.Go.Exec(func() { goon = a.tickCb() }); err != nil {
				goon = false
			}
			if !goon {
				a.Close()
				return
			}
		}
	}
}

func (a *RoutineAgent) onClose() {
	if a.beforeClose != nil {
		a.beforeClose()
	}
	a.mutex.Lock()
	a.Go.Close()
	a.mutex.Unlock()
	for cb := range a.Go.ChanCb {
		a.Go.Exec(cb)
	}
}

// Done 循环退出信号
func (a *RoutineAgent) Done() <-chan struct{} {
	return a.closeSig
}

func (a *RoutineAgent) Close() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.isClosed {
		return
	}

	a.isClosed = true
	close(a.closeSig)
}

func (a *RoutineAgent) SyncRunFunc(f func()) (err error) {
	a.mutex.RLock()
	if a.isClosed {
		err = ErrRoutineClosed
		a.mutex.RUnlock()
		return
	}

	errCh := a.Go.SubmitWithResult(f)
	a.mutex.RUnlock()
	err = <-errCh
	return
}

func (a *RoutineAgent) CtxRunFunc(ctx context.Context, f func()) (err error) {
	a.mutex.RLock()
	if a.isClosed {
		err = ErrRoutineClosed
		a.mutex.RUnlock()
		return
	}

	errCh := a.Go.SubmitWithResult(f)
	a.mutex.RUnlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (a *RoutineAgent) TryRunFunc(f func()) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.isClosed {
		return ErrRoutineClosed
	}

	if !a.Go.TrySubmit(f) {
		return ErrGoChanFull
	}
	return nil
}
