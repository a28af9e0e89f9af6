package g

import (
	"errors"
	"fmt"

	"github.com/fixkme/ticktimer/mlog"
)

var (
	ErrGoChanFull    = errors.New("go chan is full")
	ErrRoutineClosed = errors.New("routine agent is closed")
	ErrGoChanClosed  = errors.New("go chan is closed")
)

// Go 单协程任务队列, 投递进来的函数都在消费协程里串行执行
type Go struct {
	ChanCb       chan func()
	panicHandler func(r any)
	closed       bool
}

func NewGoChan(size int) *Go {
	if size < 64 {
		size = 64
	} else if size > 102400 {
		size = 102400
	}

	g := new(Go)
	g.ChanCb = make(chan func(), size)
	g.panicHandler = func(r any) {
		mlog.Errorf("go run panic: %v", r)
	}
	return g
}

func (g *Go) SetPanicHandler(f func(r any)) {
	if f != nil {
		g.panicHandler = f
	}
}

func (g *Go) Close() {
	g.closed = true
	close(g.ChanCb)
}

// SubmitWithResult 投递并返回一个完成信号, f执行完后errCh被关闭, panic时收到错误
func (g *Go) SubmitWithResult(f func()) (errCh chan error) {
	errCh = make(chan error, 1)
	call := func() {
		if g.closed {
			errCh <- ErrGoChanClosed
			return
		}
		defer close(errCh)
		if err := g.Exec(f); err != nil {
			errCh <- err
		}
	}
	select {
	case g.ChanCb <- call:
	default:
		errCh <- ErrGoChanFull
		return
	}
	return
}

func (g *Go) TrySubmit(f func()) (ok bool) {
	call := func() {
		if g.closed {
			return
		}
		f()
	}
	select {
	case g.ChanCb <- call:
		return true
	default:
		return false
	}
}

// Exec 执行cb, panic交给panicHandler并以error返回
func (g *Go) Exec(cb func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.panicHandler(r)
			err = fmt.Errorf("go run panic: %v", r)
		}
	}()

	cb()
	return nil
}
