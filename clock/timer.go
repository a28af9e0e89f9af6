package clock

// Tick 逻辑帧计数, 由宿主循环推进
type Tick = uint64

// TimerId 定时器句柄, 同一个Registry内单调递增, 不复用
type TimerId = int64

// Entry 到期被取出的定时器, action的所有权随之转移给调用方
type Entry[A any] struct {
	Id       TimerId
	FireTick Tick  // 登记时计算的到期tick
	Period   int64 // 0 = 一次性, >0 = 重复
	Action   A
}

// 定时器实现
type _Timer[A any] struct {
	id         TimerId
	when       Tick   // 到期tick, 登记后不再修改
	due        Tick   // 放入时间轮用的tick, when已经过去时为下一帧
	seq        uint64 // 登记顺序, 同一tick内按seq先后触发
	period     int64
	action     A
	prev, next *_Timer[A] // 双向链表
}

func (t *_Timer[A]) entry() Entry[A] {
	return Entry[A]{
		Id:       t.id,
		FireTick: t.when,
		Period:   t.period,
		Action:   t.action,
	}
}

func (t *_Timer[A]) removeFromList() bool {
	if t.prev == nil || t.next == nil {
		return false
	}
	t.prev.next = t.next
	t.next.prev = t.prev
	t.prev = nil
	t.next = nil
	return true
}

type _List[A any] struct {
	root *_Timer[A] //哨兵
}

func newTimerList[A any]() *_List[A] {
	l := new(_List[A])
	l.root = new(_Timer[A])
	l.root.prev = l.root
	l.root.next = l.root
	return l
}

// before 触发先后: fire tick 小的在前, 相同时按登记顺序
func (t *_Timer[A]) before(o *_Timer[A]) bool {
	if t.when != o.when {
		return t.when < o.when
	}
	return t.seq < o.seq
}

// InsertSorted 有序插入, 从尾部找位置, 新登记的定时器一般直接落在尾部
func (l *_List[A]) InsertSorted(t *_Timer[A]) {
	current := l.root.prev
	for current != l.root && t.before(current) {
		current = current.prev
	}
	t.prev = current
	t.next = current.next
	current.next.prev = t
	current.next = t
}

// IsEmpty 检查链表是否为空
func (l *_List[A]) IsEmpty() bool {
	return l.root.next == l.root
}

// Len 链表长度, O(n)
func (l *_List[A]) Len() int {
	n := 0
	for t := l.root.next; t != l.root; t = t.next {
		n++
	}
	return n
}

// PopRange 删除并遍历链表中的节点
func (l *_List[A]) PopRange(fn func(t *_Timer[A]) bool) {
	for !l.IsEmpty() {
		t := l.root.next
		t.removeFromList()
		if !fn(t) {
			break
		}
	}
}
