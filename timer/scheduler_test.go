package timer

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fixkme/ticktimer/lock"
	"github.com/fixkme/ticktimer/util/errs"
	"github.com/google/go-cmp/cmp"
)

// recorder 记录触发顺序
type recorder struct {
	fired []string
}

func (r *recorder) add(name string) func() {
	return func() { r.fired = append(r.fired, name) }
}

func advance(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.Advance(); err != nil {
			t.Fatalf("advance at tick %d: %v", s.Now(), err)
		}
	}
}

func TestFiresOnDelayedAdvance(t *testing.T) {
	for d := int64(1); d <= 130; d++ {
		s := NewScheduler()
		count := 0
		var at Tick
		if _, err := s.After(d, func() { count++; at = s.now }); err != nil {
			t.Fatal(err)
		}
		advance(t, s, int(d-1))
		if count != 0 {
			t.Fatalf("delay %d fired after %d advances", d, d-1)
		}
		advance(t, s, 1)
		if count != 1 || at != Tick(d) {
			t.Fatalf("delay %d: count=%d at=%d", d, count, at)
		}
		advance(t, s, 5)
		if count != 1 {
			t.Fatalf("delay %d fired %d times", d, count)
		}
	}
}

func TestScenarioDelayThree(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	if _, err := s.After(3, rec.add("A")); err != nil {
		t.Fatal(err)
	}
	advance(t, s, 2)
	if len(rec.fired) != 0 || s.PendingCount() != 1 {
		t.Fatalf("after 2 advances: fired=%v pending=%d", rec.fired, s.PendingCount())
	}
	advance(t, s, 1)
	if !cmp.Equal(rec.fired, []string{"A"}) || s.PendingCount() != 0 {
		t.Fatalf("after 3 advances: fired=%v pending=%d", rec.fired, s.PendingCount())
	}
}

// delay d 在第d次 Advance 触发, delay 0 在下一次; 所以 delay 0 和 delay 1 同在第一次触发.
// 这里和"delay 1 要到第二次"的说法冲突, 取舍见 DESIGN.md.
func TestDelayZeroAndOne(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	s.After(1, rec.add("C"))
	s.After(0, rec.add("B"))
	if len(rec.fired) != 0 {
		t.Fatal("delay 0 fired inline")
	}
	advance(t, s, 1)
	// B 的 fire tick 是0, C 是1, 按到期tick升序
	if diff := cmp.Diff([]string{"B", "C"}, rec.fired); diff != "" {
		t.Fatalf("first advance (-want +got):\n%s", diff)
	}
}

func TestDelayZeroFromActionWaitsNextTick(t *testing.T) {
	s := NewScheduler()
	var ticks []Tick
	var chain func()
	chain = func() {
		ticks = append(ticks, s.now)
		if len(ticks) < 3 {
			if _, err := s.NextTick(chain); err != nil {
				t.Error(err)
			}
		}
	}
	s.NextTick(chain)
	advance(t, s, 1)
	if !cmp.Equal(ticks, []Tick{1}) {
		t.Fatalf("same-tick cascade: %v", ticks)
	}
	advance(t, s, 2)
	if diff := cmp.Diff([]Tick{1, 2, 3}, ticks); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
}

func TestSameTickRegistrationOrder(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	s.After(100, rec.add("T1"))
	advance(t, s, 40)
	s.After(60, rec.add("T2"))
	s.After(60, rec.add("T3"))
	advance(t, s, 60)
	if diff := cmp.Diff([]string{"T1", "T2", "T3"}, rec.fired); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	id, _ := s.After(2, rec.add("x"))
	advance(t, s, 1)
	if !s.Cancel(id) {
		t.Fatal("cancel of pending timer returned false")
	}
	if s.Cancel(id) {
		t.Fatal("second cancel returned true")
	}
	advance(t, s, 5)
	if len(rec.fired) != 0 {
		t.Fatalf("cancelled timer fired: %v", rec.fired)
	}
	if s.Cancel(12345) {
		t.Fatal("unknown id cancelled")
	}
}

func TestCancelLaterTimerInSameBatch(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	var victim TimerId
	var cancelled bool
	s.After(1, func() {
		rec.fired = append(rec.fired, "first")
		cancelled = s.Cancel(victim)
	})
	victim, _ = s.After(1, rec.add("victim"))
	advance(t, s, 1)
	if !cancelled {
		t.Fatal("cancel of drained but not yet fired timer returned false")
	}
	if !cmp.Equal(rec.fired, []string{"first"}) {
		t.Fatalf("victim fired after cancel: %v", rec.fired)
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending = %d", s.PendingCount())
	}
}

func TestOneShotCancelSelfReturnsFalse(t *testing.T) {
	s := NewScheduler()
	var id TimerId
	result := true
	id, _ = s.After(1, func() { result = s.Cancel(id) })
	advance(t, s, 1)
	if result {
		t.Fatal("one-shot cancelling itself while firing returned true")
	}
}

func TestRepeat(t *testing.T) {
	s := NewScheduler()
	var ticks []Tick
	var id TimerId
	id, err := s.Every(3, func() {
		ticks = append(ticks, s.now)
		if len(ticks) == 4 {
			if !s.Cancel(id) {
				t.Error("cancel from own action returned false")
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	advance(t, s, 30)
	if diff := cmp.Diff([]Tick{3, 6, 9, 12}, ticks); diff != "" {
		t.Fatalf("repeat ticks (-want +got):\n%s", diff)
	}
	if s.IsScheduled(id) || s.PendingCount() != 0 {
		t.Fatal("cancelled repeating timer still pending")
	}
}

func TestRepeatPeriodZero(t *testing.T) {
	s := NewScheduler()
	count := 0
	id, err := s.Schedule(0, Func(func() { count++ }), WithRepeat(0))
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 5; i++ {
		advance(t, s, 1)
		if count != i {
			t.Fatalf("after %d advances fired %d times", i, count)
		}
	}
	if fire, ok := s.FireTick(id); !ok || fire != 6 {
		t.Fatalf("next fire tick = %d,%v", fire, ok)
	}
}

func TestPendingCount(t *testing.T) {
	s := NewScheduler()
	ids := make([]TimerId, 0, 10)
	for i := int64(1); i <= 10; i++ {
		id, _ := s.After(i, func() {})
		ids = append(ids, id)
	}
	s.Every(2, func() {})
	scheduled, cancelled := 11, 0
	for tick := 1; tick <= 12; tick++ {
		if tick == 4 {
			for _, id := range ids[6:] {
				if s.Cancel(id) {
					cancelled++
				}
			}
		}
		advance(t, s, 1)
		firedOneShots := min(tick, 10)
		if tick >= 4 {
			firedOneShots = min(tick, 6)
		}
		want := scheduled - firedOneShots - cancelled
		if got := s.PendingCount(); got != want {
			t.Fatalf("tick %d: pending=%d want %d", tick, got, want)
		}
	}
}

func TestActionFailures(t *testing.T) {
	var handled []TimerId
	var s *Scheduler
	s = NewScheduler(WithDomain("failures"), WithFailureHandler(func(ae *ActionError) {
		handled = append(handled, ae.TimerId)
	}))
	rec := &recorder{}
	boom := errors.New("boom")
	bad, _ := s.Schedule(1, ActionFunc(func(*Promise) error { return boom }), WithName("bad"))
	panicky, _ := s.After(1, func() { panic("kaboom") })
	s.After(1, rec.add("ok"))

	err := s.Advance()
	if err == nil {
		t.Fatal("expected aggregated failure")
	}
	if !errors.Is(err, errs.ActionFailure) || !errors.Is(err, boom) {
		t.Fatalf("aggregate does not match: %v", err)
	}
	fails := Failures(err)
	if len(fails) != 2 {
		t.Fatalf("failures = %d: %v", len(fails), err)
	}
	if fails[0].TimerId != bad || fails[0].Name != "bad" || fails[0].Domain != "failures" {
		t.Fatalf("first failure: %+v", fails[0])
	}
	if fails[1].TimerId != panicky || fails[1].Panic != "kaboom" || fails[1].Tick != 1 {
		t.Fatalf("second failure: %+v", fails[1])
	}
	if !cmp.Equal(rec.fired, []string{"ok"}) {
		t.Fatalf("healthy timer blocked by failures: %v", rec.fired)
	}
	if !cmp.Equal(handled, []TimerId{bad, panicky}) {
		t.Fatalf("handler saw %v", handled)
	}
	if Failures(nil) != nil {
		t.Fatal("Failures(nil) not empty")
	}
}

func TestFailingRepeatStillRequeued(t *testing.T) {
	s := NewScheduler()
	calls := 0
	id, _ := s.Schedule(1, ActionFunc(func(*Promise) error {
		calls++
		return fmt.Errorf("fail %d", calls)
	}), WithRepeat(1))
	for i := 0; i < 3; i++ {
		if err := s.Advance(); len(Failures(err)) != 1 {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if calls != 3 || !s.IsScheduled(id) {
		t.Fatalf("calls=%d scheduled=%v", calls, s.IsScheduled(id))
	}
}

func TestFailureHandlerCancels(t *testing.T) {
	var s *Scheduler
	s = NewScheduler(WithFailureHandler(func(ae *ActionError) {
		s.Cancel(ae.TimerId)
	}))
	calls := 0
	id, _ := s.Schedule(1, ActionFunc(func(*Promise) error {
		calls++
		return errors.New("stop me")
	}), WithRepeat(1))
	s.Advance()
	s.Advance()
	if calls != 1 || s.IsScheduled(id) {
		t.Fatalf("calls=%d scheduled=%v", calls, s.IsScheduled(id))
	}
}

func TestSingleFailure(t *testing.T) {
	s := NewScheduler()
	boom := errors.New("boom")
	id, _ := s.Schedule(1, ActionFunc(func(*Promise) error { return boom }), WithName("solo"))

	err := s.Advance()
	fails := Failures(err)
	if len(fails) != 1 || fails[0].TimerId != id || fails[0].Name != "solo" {
		t.Fatalf("failures %+v from %v", fails, err)
	}
	if !errors.Is(err, errs.ActionFailure) || !errors.Is(err, boom) {
		t.Fatalf("single failure does not match: %v", err)
	}
	if errors.Is(err, errs.InvalidDelay) {
		t.Fatal("matched unrelated code")
	}
}

func TestFailureHandlerPanic(t *testing.T) {
	s := NewScheduler(WithFailureHandler(func(*ActionError) {
		panic("handler broke")
	}))
	rec := &recorder{}
	s.Schedule(1, ActionFunc(func(*Promise) error { return errors.New("bad") }))
	s.After(1, rec.add("healthy"))
	repeat, _ := s.Every(1, rec.add("repeat"))

	err := s.Advance()
	if len(Failures(err)) != 1 {
		t.Fatalf("failures from %v", err)
	}
	if diff := cmp.Diff([]string{"healthy", "repeat"}, rec.fired); diff != "" {
		t.Fatalf("batch after handler panic (-want +got):\n%s", diff)
	}
	if s.PendingCount() != 1 || !s.IsScheduled(repeat) {
		t.Fatalf("pending=%d repeat scheduled=%v", s.PendingCount(), s.IsScheduled(repeat))
	}
	advance(t, s, 1)
	if len(rec.fired) != 3 {
		t.Fatalf("repeat not requeued: %v", rec.fired)
	}
}

func TestEveryKeepsCallerOptions(t *testing.T) {
	s := NewScheduler()
	opts := make([]Option, 1, 4)
	opts[0] = WithName("tick/a")
	if _, err := s.Every(2, func() {}, opts...); err != nil {
		t.Fatal(err)
	}
	if _, err := s.After(2, func() {}, opts[:1]...); !errors.Is(err, errs.DuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	extended := opts[:2]
	if extended[1] != nil {
		t.Fatal("Every wrote into caller's option slice")
	}
}

func TestReentrantAdvance(t *testing.T) {
	s := NewScheduler()
	var inner error
	s.After(1, func() { inner = s.Advance() })
	advance(t, s, 1)
	if !errors.Is(inner, errs.ReentrantAdvance) {
		t.Fatalf("inner advance: %v", inner)
	}
	if s.Now() != 1 {
		t.Fatalf("now = %d", s.Now())
	}
	// 重入被拒绝后还能正常推进
	advance(t, s, 1)
}

func TestInvalidSchedule(t *testing.T) {
	s := NewScheduler()
	if _, err := s.After(-1, func() {}); !errors.Is(err, errs.InvalidDelay) {
		t.Fatalf("negative delay: %v", err)
	}
	if _, err := s.Schedule(1, nil); !errors.Is(err, errs.NilAction) {
		t.Fatalf("nil action: %v", err)
	}
	if _, err := s.After(1, nil); !errors.Is(err, errs.NilAction) {
		t.Fatalf("nil func: %v", err)
	}
	if _, err := s.Every(-2, func() {}); !errors.Is(err, errs.InvalidDelay) {
		t.Fatalf("negative every: %v", err)
	}
	if _, err := s.Schedule(1, Func(func() {}), WithRepeat(-1)); !errors.Is(err, errs.InvalidPeriod) {
		t.Fatalf("negative period: %v", err)
	}
	if s.PendingCount() != 0 {
		t.Fatal("invalid schedule registered a timer")
	}
}

func TestPromise(t *testing.T) {
	s := NewScheduler()
	var got Promise
	advance(t, s, 7)
	id, _ := s.Schedule(0, ActionFunc(func(p *Promise) error {
		got = *p
		return nil
	}), WithName("spawn"), WithData(42))
	advance(t, s, 1)
	want := Promise{TimerId: id, Tick: 8, FireTick: 7, Name: "spawn", Data: 42}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("promise (-want +got):\n%s", diff)
	}
}

func TestNames(t *testing.T) {
	s := NewScheduler()
	a, _ := s.After(5, func() {}, WithName("npc/1/attack"))
	s.Every(2, func() {}, WithName("npc/1/regen"))
	s.After(5, func() {}, WithName("npc/2/attack"))

	if _, err := s.After(1, func() {}, WithName("npc/1/attack")); !errors.Is(err, errs.DuplicateName) {
		t.Fatalf("duplicate name: %v", err)
	}
	if id, ok := s.Lookup("npc/1/attack"); !ok || id != a {
		t.Fatalf("Lookup = %d,%v", id, ok)
	}
	if n := s.CancelPrefix("npc/1/"); n != 2 {
		t.Fatalf("CancelPrefix = %d", n)
	}
	if _, ok := s.Lookup("npc/1/regen"); ok {
		t.Fatal("cancelled name still bound")
	}
	if s.PendingCount() != 1 {
		t.Fatalf("pending = %d", s.PendingCount())
	}
	advance(t, s, 5)
	if _, ok := s.Lookup("npc/2/attack"); ok {
		t.Fatal("fired name still bound")
	}
	if _, err := s.After(1, func() {}, WithName("npc/2/attack")); err != nil {
		t.Fatalf("name not reusable after fire: %v", err)
	}
}

func TestCancelAll(t *testing.T) {
	s := NewScheduler()
	rec := &recorder{}
	s.After(1, func() { s.CancelAll() })
	s.After(1, rec.add("same-tick"))
	s.After(3, rec.add("later"), WithName("later"))
	advance(t, s, 5)
	if len(rec.fired) != 0 {
		t.Fatalf("fired after CancelAll: %v", rec.fired)
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending = %d", s.PendingCount())
	}
	if _, ok := s.Lookup("later"); ok {
		t.Fatal("name index not cleared")
	}
}

func TestConcurrentSchedule(t *testing.T) {
	s := NewScheduler(WithLocker(lock.NewSpinLock()))
	var mu sync.Mutex
	fired := make(map[TimerId]int)
	const workers, perWorker = 4, 200

	wg := sync.WaitGroup{}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.Schedule(int64((w+i)%7), ActionFunc(func(p *Promise) error {
					mu.Lock()
					fired[p.TimerId]++
					mu.Unlock()
					return nil
				}))
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if err := s.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	advance(t, s, 8)
	if len(fired) != workers*perWorker {
		t.Fatalf("fired %d timers, want %d", len(fired), workers*perWorker)
	}
	for id, n := range fired {
		if n != 1 {
			t.Fatalf("timer %d fired %d times", id, n)
		}
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending = %d", s.PendingCount())
	}
}

func TestDomains(t *testing.T) {
	a := NewScheduler()
	b := NewScheduler(WithDomain("sim-b"))
	if a.Name() == "" || a.Name() == b.Name() || b.Name() != "sim-b" {
		t.Fatalf("domains %q %q", a.Name(), b.Name())
	}
	fired := 0
	a.After(1, func() { fired++ })
	advance(t, b, 3)
	if fired != 0 {
		t.Fatal("advancing one domain fired another's timer")
	}
	advance(t, a, 1)
	if fired != 1 {
		t.Fatal("timer did not fire in its own domain")
	}
}
