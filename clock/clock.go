// Package clock 基于逻辑tick的分层时间轮, 只负责存储、取消、取出到期定时器, 不执行任何回调.
//
// Registry 不是协程安全的, 由上层(timer.Scheduler)加锁.
package clock

import (
	"github.com/fixkme/ticktimer/mlog"
	"github.com/fixkme/ticktimer/util"
	"github.com/fixkme/ticktimer/util/errs"
)

const (
	_SLOT_BITS        = 6
	_SLOTS            = 1 << _SLOT_BITS
	_SLOT_MASK        = _SLOTS - 1
	_TIME_WHEEL_LEVEL = 4
)

// 每层能覆盖的tick跨度: 64, 64^2, 64^3, 64^4
var _LEVEL_TICKS = [_TIME_WHEEL_LEVEL]Tick{}

func init() {
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		_LEVEL_TICKS[i] = 1 << (_SLOT_BITS * (i + 1))
	}
}

type Registry[A any] struct {
	genId    TimerId
	genSeq   uint64
	cursor   Tick // 最后一次取出的tick
	tw       [_TIME_WHEEL_LEVEL][_SLOTS]*_List[A]
	overflow *_List[A]                // 超出时间轮范围的定时器
	locs     map[TimerId]*_Timer[A] //记录位置
}

func NewRegistry[A any]() *Registry[A] {
	return &Registry[A]{
		overflow: newTimerList[A](),
		locs:     make(map[TimerId]*_Timer[A]),
	}
}

// Now 最后一次 DrainDue 推进到的tick
func (r *Registry[A]) Now() Tick {
	return r.cursor
}

// Len 等待触发的定时器数量
func (r *Registry[A]) Len() int {
	return len(r.locs)
}

func (r *Registry[A]) IsScheduled(id TimerId) bool {
	_, ok := r.locs[id]
	return ok
}

// FireTick 查询定时器登记的到期tick
func (r *Registry[A]) FireTick(id TimerId) (Tick, bool) {
	t, ok := r.locs[id]
	if !ok {
		return 0, false
	}
	return t.when, true
}

// Schedule 登记一个 delay 个tick后到期的定时器, fire_tick = Now() + delay.
// delay 为0时在下一次 DrainDue 中取出, 不会在登记时立即触发.
func (r *Registry[A]) Schedule(delay, period int64, action A) (TimerId, error) {
	if delay < 0 {
		return 0, errs.InvalidDelay.Printf("delay=%d", delay)
	}
	if period < 0 {
		return 0, errs.InvalidPeriod.Printf("period=%d", period)
	}
	when, ok := util.AddTicks(r.cursor, delay)
	if !ok {
		return 0, errs.InvalidDelay.Printf("delay=%d overflows tick %d", delay, r.cursor)
	}
	r.genId++
	t := &_Timer[A]{
		id:     r.genId,
		when:   when,
		period: period,
		action: action,
	}
	r.enroll(t)
	return t.id, nil
}

// Requeue 把取出的重复定时器按原id重新登记, fire_tick = Now() + Period
func (r *Registry[A]) Requeue(e Entry[A]) (Tick, bool) {
	if e.Period <= 0 {
		return 0, false
	}
	if _, ok := r.locs[e.Id]; ok {
		return 0, false
	}
	when, ok := util.AddTicks(r.cursor, e.Period)
	if !ok {
		return 0, false
	}
	t := &_Timer[A]{
		id:     e.Id,
		when:   when,
		period: e.Period,
		action: e.Action,
	}
	r.enroll(t)
	return when, true
}

// Cancel 取消等待中的定时器, 未知或已触发的id返回false
func (r *Registry[A]) Cancel(id TimerId) bool {
	_, ok := r.Remove(id)
	return ok
}

// Remove 同 Cancel, 同时交回定时器的action
func (r *Registry[A]) Remove(id TimerId) (e Entry[A], ok bool) {
	t, ok := r.locs[id]
	if !ok {
		return
	}
	t.removeFromList()
	delete(r.locs, id)
	return t.entry(), true
}

// Clear 删除全部定时器, 返回删除数量
func (r *Registry[A]) Clear() int {
	n := len(r.locs)
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		r.tw[i] = [_SLOTS]*_List[A]{}
	}
	r.overflow = newTimerList[A]()
	r.locs = make(map[TimerId]*_Timer[A])
	return n
}

// DrainDue 推进到now, 取出所有 fire_tick <= now 的定时器.
// 按fire_tick升序, 同一tick内按登记顺序.
func (r *Registry[A]) DrainDue(now Tick) []Entry[A] {
	var out []Entry[A]
	for r.cursor < now {
		if len(r.locs) == 0 {
			// 空轮子直接跳过, 槽位只和绝对tick有关
			r.cursor = now
			break
		}
		out = r.tick(r.cursor+1, out)
	}
	return out
}

func (r *Registry[A]) enroll(t *_Timer[A]) {
	r.genSeq++
	t.seq = r.genSeq
	t.due = max(t.when, r.cursor+1)
	r.locs[t.id] = t
	r.addTimer(t)
}

// addTimer 按 due-cursor 选层. 轮动时 due 可能等于 cursor, 落在本tick马上要取出的0层槽位.
func (r *Registry[A]) addTimer(t *_Timer[A]) {
	ticks := t.due - r.cursor
	for level := 0; level < _TIME_WHEEL_LEVEL; level++ {
		if ticks < _LEVEL_TICKS[level] {
			slot := (t.due >> (_SLOT_BITS * level)) & _SLOT_MASK
			mlog.Tracef("clock add timer [%d, %d, %d], when=%d, cursor=%d", t.id, level, slot, t.when, r.cursor)
			r.putTimer(level, slot, t)
			return
		}
	}
	mlog.Tracef("clock add timer %d to overflow, when=%d, cursor=%d", t.id, t.when, r.cursor)
	r.overflow.InsertSorted(t)
}

func (r *Registry[A]) putTimer(level int, slot Tick, t *_Timer[A]) {
	timerList := r.tw[level][slot]
	if timerList == nil {
		timerList = newTimerList[A]()
		r.tw[level][slot] = timerList
	}
	timerList.InsertSorted(t)
}

func (r *Registry[A]) tick(tk Tick, out []Entry[A]) []Entry[A] {
	r.cursor = tk
	// 高层轮动, 从高到低, 保证上层落下来的定时器能继续落到本tick的0层
	for level := _TIME_WHEEL_LEVEL - 1; level > 0; level-- {
		if tk&(_LEVEL_TICKS[level-1]-1) != 0 {
			continue
		}
		if level == _TIME_WHEEL_LEVEL-1 && !r.overflow.IsEmpty() {
			timerList := r.overflow
			r.overflow = newTimerList[A]()
			r.cascade(timerList)
		}
		slot := (tk >> (_SLOT_BITS * level)) & _SLOT_MASK
		if timerList := r.tw[level][slot]; timerList != nil {
			r.tw[level][slot] = nil
			r.cascade(timerList)
		}
	}
	// 0层触发定时器
	timerList := r.tw[0][tk&_SLOT_MASK]
	if timerList == nil {
		return out
	}
	timerList.PopRange(func(t *_Timer[A]) bool {
		delete(r.locs, t.id)
		mlog.Tracef("clock drain timer id:%d, when:%d, tick:%d", t.id, t.when, tk)
		out = append(out, t.entry())
		return true
	})
	return out
}

// cascade 把上层槽位的定时器重新分配到下层, locs 不变
func (r *Registry[A]) cascade(timerList *_List[A]) {
	timerList.PopRange(func(t *_Timer[A]) bool {
		r.addTimer(t)
		return true
	})
}
