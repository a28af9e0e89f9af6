package timer

import (
	"github.com/fixkme/ticktimer/clock"
)

type (
	Tick    = clock.Tick
	TimerId = clock.TimerId
)

// Promise 触发时传给回调的上下文
type Promise struct {
	TimerId  TimerId
	Tick     Tick // 当前tick
	FireTick Tick // 登记时计算的到期tick
	Name     string
	Data     any
}

// Action 定时器回调, 返回的error和panic都会被收集到 Advance 的结果里
type Action interface {
	OnTimer(p *Promise) error
}

type ActionFunc func(p *Promise) error

func (f ActionFunc) OnTimer(p *Promise) error {
	return f(p)
}

// Func 包装不关心上下文也不会失败的回调
func Func(f func()) Action {
	if f == nil {
		return nil
	}
	return ActionFunc(func(*Promise) error {
		f()
		return nil
	})
}
