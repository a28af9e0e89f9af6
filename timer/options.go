package timer

import (
	"sync"
)

type timerOptions struct {
	repeat bool
	period int64
	name   string
	data   any
}

// Option 单个定时器的选项
type Option func(*timerOptions)

// WithRepeat 触发后按 period 重新登记, period 为0时按1处理, 同一次 Advance 内不会触发两次
func WithRepeat(period int64) Option {
	return func(o *timerOptions) {
		o.repeat = true
		o.period = period
	}
}

// WithName 给定时器起名, 可以用 Lookup/CancelPrefix 按名字操作, 等待中的名字不能重复
func WithName(name string) Option {
	return func(o *timerOptions) {
		o.name = name
	}
}

// WithData 透传数据, 触发时放在 Promise.Data
func WithData(data any) Option {
	return func(o *timerOptions) {
		o.data = data
	}
}

type schedulerOptions struct {
	domain    string
	locker    sync.Locker
	onFailure func(*ActionError)
}

type SchedulerOption func(*schedulerOptions)

// WithDomain 调度器名字, 日志里区分不同的tick域, 默认随机xid
func WithDomain(domain string) SchedulerOption {
	return func(o *schedulerOptions) {
		o.domain = domain
	}
}

// WithLocker 替换默认的 sync.Mutex, 比如 lock.NewSpinLock()
func WithLocker(l sync.Locker) SchedulerOption {
	return func(o *schedulerOptions) {
		o.locker = l
	}
}

// WithFailureHandler 回调失败后立即调用, 不持有锁, 里面可以 Cancel 出错的定时器
func WithFailureHandler(f func(*ActionError)) SchedulerOption {
	return func(o *schedulerOptions) {
		o.onFailure = f
	}
}
