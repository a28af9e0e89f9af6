package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/fixkme/ticktimer/framework/config"
	g "github.com/fixkme/ticktimer/framework/go"
	"github.com/fixkme/ticktimer/lock"
	"github.com/fixkme/ticktimer/mlog"
	"github.com/fixkme/ticktimer/timer"
)

const (
	heartbeatPeriod = 20
	npcCount        = 3
	npcPeriod       = 5
	despawnDelay    = 50
	failDelay       = 30
)

type simStats struct {
	Ticks      int64
	Failures   int64
	Despawned  int
	Pending    int
	FinalTick  timer.Tick
	DomainName string
}

// simModule 在 RoutineAgent 协程里推进调度器, 注册一组演示定时器
type simModule struct {
	conf  *config.AppConfig
	sched *timer.Scheduler
	agent *g.RoutineAgent

	mu    sync.Mutex
	stats simStats
}

func newSimModule(conf *config.AppConfig) *simModule {
	return &simModule{conf: conf}
}

func (m *simModule) Name() string {
	return "sim"
}

func (m *simModule) OnInit() error {
	opts := []timer.SchedulerOption{
		timer.WithFailureHandler(m.onFailure),
	}
	if m.conf.Domain != "" {
		opts = append(opts, timer.WithDomain(m.conf.Domain))
	}
	if m.conf.SpinLock {
		opts = append(opts, timer.WithLocker(lock.NewSpinLock()))
	}
	m.sched = timer.NewScheduler(opts...)
	m.agent = g.NewRoutineAgent(m.conf.TaskChanSize, time.Duration(m.conf.TickIntervalMs)*time.Millisecond)
	m.agent.Init(m.onTick, m.onClose)
	return m.setup()
}

func (m *simModule) setup() error {
	s := m.sched
	if _, err := s.NextTick(func() {
		mlog.Infof("sim %s started at tick %d", s.Name(), s.Now())
	}); err != nil {
		return err
	}
	if _, err := s.Every(heartbeatPeriod, func() {
		mlog.Infof("heartbeat tick %d pending %d", s.Now(), s.PendingCount())
	}, timer.WithName("heartbeat")); err != nil {
		return err
	}
	for i := 1; i <= npcCount; i++ {
		name := fmt.Sprintf("npc/%d", i)
		if _, err := s.Every(npcPeriod, func() {
			mlog.Debugf("%s think at tick %d", name, s.Now())
		}, timer.WithName(name)); err != nil {
			return err
		}
	}
	despawn := timer.ActionFunc(func(p *timer.Promise) error {
		n := s.CancelPrefix("npc/")
		m.mu.Lock()
		m.stats.Despawned += n
		m.mu.Unlock()
		mlog.Infof("%s at tick %d cancelled %d npc timers", p.Name, p.Tick, n)
		return nil
	})
	if _, err := s.Schedule(despawnDelay, despawn, timer.WithName("despawn")); err != nil {
		return err
	}
	fail := timer.ActionFunc(func(p *timer.Promise) error {
		return fmt.Errorf("%v: demo failure", p.Data)
	})
	if _, err := s.Schedule(failDelay, fail, timer.WithName("broken"), timer.WithData("quest-42")); err != nil {
		return err
	}
	return nil
}

func (m *simModule) onTick() bool {
	err := m.sched.Advance()
	failed := len(timer.Failures(err))

	m.mu.Lock()
	m.stats.Ticks++
	m.stats.Failures += int64(failed)
	ticks := m.stats.Ticks
	m.mu.Unlock()

	if err != nil {
		mlog.Warnf("tick %d: %v", m.sched.Now(), err)
	}
	return m.conf.MaxTicks == 0 || ticks < m.conf.MaxTicks
}

func (m *simModule) onFailure(aerr *timer.ActionError) {
	mlog.Errorf("timer %d (%s) failed at tick %d: %v", aerr.TimerId, aerr.Name, aerr.Tick, aerr.Err)
}

func (m *simModule) onClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Pending = m.sched.PendingCount()
	m.stats.FinalTick = m.sched.Now()
	m.stats.DomainName = m.sched.Name()
}

// Despawn 从其他协程取消名字前缀匹配的定时器, 转到tick协程执行
func (m *simModule) Despawn(prefix string) (int, error) {
	n := 0
	err := m.agent.SyncRunFunc(func() {
		n = m.sched.CancelPrefix(prefix)
	})
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.stats.Despawned += n
	m.mu.Unlock()
	mlog.Infof("despawn %q cancelled %d timers", prefix, n)
	return n, nil
}

func (m *simModule) Run() {
	m.agent.Run()
}

func (m *simModule) Destroy() {
	m.agent.Close()
}

func (m *simModule) Stats() simStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
