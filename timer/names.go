package timer

import (
	"github.com/fixkme/ticktimer/mlog"
)

// Lookup 按名字查等待中的定时器
func (s *Scheduler) Lookup(name string) (TimerId, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.names.Get(name)
	if !ok {
		return 0, false
	}
	return v.(TimerId), true
}

// CancelPrefix 取消名字以prefix开头的所有定时器, 比如 "npc/42/" 取消一个实体的全部定时器
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []TimerId
	s.names.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		ids = append(ids, v.(TimerId))
		return false
	})
	n := 0
	for _, id := range ids {
		if s.cancel(id) {
			n++
		}
	}
	mlog.Debugf("scheduler %s cancel prefix %q, %d timers", s.domain, prefix, n)
	return n
}

func (s *Scheduler) unbindName(e entry) {
	name := e.Action.name
	if name == "" {
		return
	}
	// 名字可能已经被新的定时器占用
	if v, ok := s.names.Get(name); ok && v.(TimerId) == e.Id {
		s.names.Delete(name)
	}
}
