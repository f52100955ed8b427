package schedule

import (
	"sort"
	"sync"
	"time"

	"impromptu/internal/ports"
)

// Manual is a virtual-time scheduler. Nothing runs until Advance is called,
// which makes timer-driven code deterministic under test.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	due       time.Duration
	seq       int
	interval  time.Duration
	fn        func()
	cancelled bool
	owner     *Manual
}

func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.cancelled = true
}

func NewManual() *Manual {
	return &Manual{}
}

// Elapsed returns the virtual time advanced so far.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(delay time.Duration, fn func()) ports.Handle {
	return m.add(delay, 0, fn)
}

func (m *Manual) Every(interval time.Duration, fn func()) ports.Handle {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return m.add(interval, interval, fn)
}

func (m *Manual) Post(fn func()) {
	if fn == nil {
		return
	}
	m.add(0, 0, fn)
}

// Go runs work inline and queues then at the current virtual instant.
func (m *Manual) Go(work func(), then func()) {
	work()
	if then != nil {
		m.Post(then)
	}
}

// Flush runs everything due at the current instant.
func (m *Manual) Flush() {
	m.Advance(0)
}

// Advance moves virtual time forward by d, running due callbacks in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		task := m.next(target)
		if task == nil {
			break
		}
		task.fn()
	}

	m.mu.Lock()
	if m.now < target {
		m.now = target
	}
	m.mu.Unlock()
}

// Pending reports how many live callbacks are queued.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			count++
		}
	}
	return count
}

func (m *Manual) add(delay, interval time.Duration, fn func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	m.seq++
	task := &manualTask{due: m.now + delay, seq: m.seq, interval: interval, fn: fn, owner: m}
	m.tasks = append(m.tasks, task)
	return task
}

// next pops the earliest live task due at or before target and advances the clock to it.
func (m *Manual) next(target time.Duration) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live
	if len(m.tasks) == 0 {
		return nil
	}

	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due != m.tasks[j].due {
			return m.tasks[i].due < m.tasks[j].due
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	task := m.tasks[0]
	if task.due > target {
		return nil
	}

	m.now = task.due
	if task.interval > 0 {
		m.seq++
		task.due += task.interval
		task.seq = m.seq
	} else {
		m.tasks = m.tasks[1:]
	}

	fn := task.fn
	return &manualTask{fn: func() {
		m.mu.Lock()
		cancelled := task.cancelled
		m.mu.Unlock()
		if !cancelled {
			fn()
		}
	}}
}
