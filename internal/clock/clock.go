// Package clock provides scheduled-task handles for the overlay's short
// timers (long-press detection, popup auto-hide). Components own their Task
// handles and cancel them on teardown or state transition.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Task is a single pending callback. Cancel reports whether the callback was
// stopped before it ran.
type Task interface {
	Cancel() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

type systemScheduler struct{}

type systemTask struct {
	timer *time.Timer
}

// System returns the wall-clock scheduler.
func System() Scheduler {
	return systemScheduler{}
}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) Task {
	return &systemTask{timer: time.AfterFunc(d, fn)}
}

func (t *systemTask) Cancel() bool {
	return t.timer.Stop()
}

// Manual is a test scheduler whose time only moves when Advance is called.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner    *Manual
	due      time.Duration
	seq      int
	fn       func()
	canceled bool
	fired    bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	task := &manualTask{owner: m, due: m.now + d, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, task)
	return task
}

// Advance moves time forward and fires due tasks in schedule order. Callbacks
// run without the scheduler lock held, so they may schedule further tasks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	deadline := m.now + d
	m.mu.Unlock()

	for {
		task := m.nextDue(deadline)
		if task == nil {
			break
		}
		// Time observed by the callback is the task's own due time, so a
		// callback scheduling a follow-up measures from the right origin.
		m.mu.Lock()
		if task.due > m.now {
			m.now = task.due
		}
		m.mu.Unlock()
		task.fn()
	}

	m.mu.Lock()
	m.now = deadline
	m.mu.Unlock()
}

func (m *Manual) nextDue(deadline time.Duration) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due != m.tasks[j].due {
			return m.tasks[i].due < m.tasks[j].due
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	for _, task := range m.tasks {
		if task.canceled || task.fired || task.due > deadline {
			continue
		}
		task.fired = true
		return task
	}
	return nil
}

// Pending reports how many tasks are scheduled and not yet fired or canceled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.tasks {
		if !task.canceled && !task.fired {
			n++
		}
	}
	return n
}

func (t *manualTask) Cancel() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.fired || t.canceled {
		return false
	}
	t.canceled = true
	return true
}
