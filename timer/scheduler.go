// Package timer 按tick触发的延时回调调度器.
//
// 宿主循环每个逻辑帧调用一次 Advance, 调度器本身不读时钟、不起协程.
// Schedule/Cancel 可以在任意协程调用, 也可以在回调里调用; 回调在锁外执行.
// Advance 不能并发或重入, 重入时返回 errs.ReentrantAdvance.
package timer

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/armon/go-radix"
	"github.com/fixkme/ticktimer/clock"
	"github.com/fixkme/ticktimer/mlog"
	"github.com/fixkme/ticktimer/util/errs"
	"github.com/rs/xid"
	"go.uber.org/multierr"
)

type job struct {
	action Action
	name   string
	data   any
}

type entry = clock.Entry[*job]

type Scheduler struct {
	domain    string
	mu        sync.Locker
	now       Tick
	reg       *clock.Registry[*job]
	inflight  map[TimerId]entry // 本次Advance已取出、还没处理完的定时器
	names     *radix.Tree       // name -> TimerId
	advancing bool
	onFailure func(*ActionError)
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	o := schedulerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.domain == "" {
		o.domain = xid.New().String()
	}
	if o.locker == nil {
		o.locker = &sync.Mutex{}
	}
	return &Scheduler{
		domain:    o.domain,
		mu:        o.locker,
		reg:       clock.NewRegistry[*job](),
		inflight:  make(map[TimerId]entry),
		names:     radix.New(),
		onFailure: o.onFailure,
	}
}

func (s *Scheduler) Name() string {
	return s.domain
}

// Now 当前tick, 初始为0, 每次 Advance 加1
func (s *Scheduler) Now() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Schedule 登记一个 delay 个tick之后触发的回调, 第 delay 次 Advance 时触发(delay为0时是下一次).
func (s *Scheduler) Schedule(delay int64, action Action, opts ...Option) (TimerId, error) {
	if action == nil {
		return 0, errs.NilAction
	}
	if delay < 0 {
		return 0, errs.InvalidDelay.Printf("delay=%d", delay)
	}
	o := timerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	var period int64
	if o.repeat {
		if o.period < 0 {
			return 0, errs.InvalidPeriod.Printf("period=%d", o.period)
		}
		period = max(o.period, 1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if o.name != "" {
		if id, ok := s.names.Get(o.name); ok {
			return 0, errs.DuplicateName.Printf("name=%s, timer=%d", o.name, id)
		}
	}
	id, err := s.reg.Schedule(delay, period, &job{action: action, name: o.name, data: o.data})
	if err != nil {
		return 0, err
	}
	if o.name != "" {
		s.names.Insert(o.name, id)
	}
	mlog.Debugf("scheduler %s schedule timer %d(%s), delay:%d, period:%d, now:%d", s.domain, id, o.name, delay, period, s.now)
	return id, nil
}

// After 一次性定时器
func (s *Scheduler) After(delay int64, f func(), opts ...Option) (TimerId, error) {
	return s.Schedule(delay, Func(f), opts...)
}

// Every 重复定时器, 第一次在 period 个tick后
func (s *Scheduler) Every(period int64, f func(), opts ...Option) (TimerId, error) {
	return s.Schedule(period, Func(f), append(opts[:len(opts):len(opts)], WithRepeat(period))...)
}

// NextTick 下一次 Advance 时触发
func (s *Scheduler) NextTick(f func(), opts ...Option) (TimerId, error) {
	return s.Schedule(0, Func(f), opts...)
}

// Cancel 取消未触发的定时器, 只有第一次成功取消返回true.
// 回调里取消自己所在的重复定时器会阻止它重新登记.
func (s *Scheduler) Cancel(id TimerId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel(id)
}

func (s *Scheduler) cancel(id TimerId) bool {
	if e, ok := s.inflight[id]; ok {
		delete(s.inflight, id)
		s.unbindName(e)
		mlog.Debugf("scheduler %s cancel in-flight timer %d, now:%d", s.domain, id, s.now)
		return true
	}
	e, ok := s.reg.Remove(id)
	if !ok {
		return false
	}
	s.unbindName(e)
	mlog.Debugf("scheduler %s cancel timer %d, now:%d", s.domain, id, s.now)
	return true
}

// CancelAll 取消全部定时器, 返回取消的数量
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.reg.Clear() + len(s.inflight)
	s.inflight = make(map[TimerId]entry)
	s.names = radix.New()
	mlog.Debugf("scheduler %s cancel all %d timers, now:%d", s.domain, n, s.now)
	return n
}

// PendingCount 等待触发的定时器数量
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len() + len(s.inflight)
}

func (s *Scheduler) IsScheduled(id TimerId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return true
	}
	return s.reg.IsScheduled(id)
}

// FireTick 查询定时器的到期tick
func (s *Scheduler) FireTick(id TimerId) (Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.inflight[id]; ok {
		return e.FireTick, true
	}
	return s.reg.FireTick(id)
}

// Advance 推进一个tick, 按到期tick升序、同tick按登记顺序依次执行到期回调.
// 单个回调失败不影响其他回调, 所有失败合并返回, 用 Failures 拆开.
func (s *Scheduler) Advance() (err error) {
	s.mu.Lock()
	if s.advancing {
		s.mu.Unlock()
		mlog.Errorf("scheduler %s reentrant advance", s.domain)
		return errs.ReentrantAdvance.Printf("domain=%s", s.domain)
	}
	s.advancing = true
	s.now++
	now := s.now
	due := s.reg.DrainDue(now)
	for _, e := range due {
		s.inflight[e.Id] = e
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.advancing = false
		s.mu.Unlock()
	}()

	for _, e := range due {
		if !s.take(e) {
			// 被同一批里更早的回调取消了
			continue
		}
		if aerr := s.invoke(now, e); aerr != nil {
			err = multierr.Append(err, aerr)
			s.handleFailure(aerr)
		}
		if e.Period > 0 {
			s.requeue(e)
		}
	}
	return err
}

// handleFailure 失败回调panic时只记日志, 本批剩下的定时器照常处理
func (s *Scheduler) handleFailure(aerr *ActionError) {
	if s.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("scheduler %s failure handler panic, timer %d: %v\n%s", s.domain, aerr.TimerId, r, debug.Stack())
		}
	}()
	s.onFailure(aerr)
}

// take 一次性定时器在执行前就出队, 重复定时器留到执行完再重新登记
func (s *Scheduler) take(e entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[e.Id]; !ok {
		return false
	}
	if e.Period == 0 {
		delete(s.inflight, e.Id)
		s.unbindName(e)
	}
	return true
}

func (s *Scheduler) requeue(e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[e.Id]; !ok {
		// 回调里取消了自己
		return
	}
	delete(s.inflight, e.Id)
	if _, ok := s.reg.Requeue(e); !ok {
		s.unbindName(e)
		mlog.Warnf("scheduler %s requeue timer %d failed, now:%d, period:%d", s.domain, e.Id, s.now, e.Period)
	}
}

func (s *Scheduler) invoke(now Tick, e entry) (aerr *ActionError) {
	j := e.Action
	defer func() {
		if r := recover(); r != nil {
			aerr = &ActionError{
				Domain:  s.domain,
				TimerId: e.Id,
				Tick:    now,
				Name:    j.name,
				Err:     fmt.Errorf("panic: %v", r),
				Panic:   r,
			}
			mlog.Errorf("scheduler %s timer %d panic at tick %d: %v\n%s", s.domain, e.Id, now, r, debug.Stack())
		}
	}()

	p := &Promise{
		TimerId:  e.Id,
		Tick:     now,
		FireTick: e.FireTick,
		Name:     j.name,
		Data:     j.data,
	}
	if err := j.action.OnTimer(p); err != nil {
		mlog.Warnf("scheduler %s timer %d(%s) failed at tick %d: %v", s.domain, e.Id, j.name, now, err)
		return &ActionError{
			Domain:  s.domain,
			TimerId: e.Id,
			Tick:    now,
			Name:    j.name,
			Err:     err,
		}
	}
	return nil
}
