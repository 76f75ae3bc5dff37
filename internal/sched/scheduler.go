// Package sched provides a discrete-event scheduler. Tasks are kept in a
// timer heap ordered by due time and run one at a time to completion, either
// by a background loop on a real clock or by stepping a mock clock.
package sched

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a unit of scheduled work. ctx is the run token of the loop that
// executes the task.
type Task func(ctx context.Context)

// Handle identifies a scheduled task so it can be cancelled.
type Handle uint64

type entry struct {
	id     uint64
	name   string
	due    time.Time
	seq    uint64
	period time.Duration
	epoch  uint64
	fn     Task
	index  int
}

// taskHeap implements heap.Interface ordered by (due, seq).
type taskHeap []*entry

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler runs timed tasks serially. It is safe for concurrent use.
type Scheduler struct {
	clk    clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	queue   taskHeap
	byID    map[uint64]*entry
	nextID  uint64
	nextSeq uint64
	epoch   uint64

	runMu sync.Mutex // held while tasks execute
	wake  chan struct{}
}

// New creates a Scheduler driven by clk.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clk:    clk,
		logger: logger.With(slog.String("component", "scheduler")),
		byID:   make(map[uint64]*entry),
		wake:   make(chan struct{}, 1),
	}
}

// Clock returns the clock that drives the scheduler.
func (s *Scheduler) Clock() clock.Clock { return s.clk }

// Now returns the current scheduler time.
func (s *Scheduler) Now() time.Time { return s.clk.Now() }

// After schedules fn to run once, d from now.
func (s *Scheduler) After(d time.Duration, name string, fn Task) Handle {
	return s.schedule(d, 0, name, fn)
}

// Every schedules fn to run every interval, first after one interval.
func (s *Scheduler) Every(interval time.Duration, name string, fn Task) Handle {
	if interval <= 0 {
		panic(fmt.Sprintf("sched: non-positive interval for %q", name))
	}
	return s.schedule(interval, interval, name, fn)
}

func (s *Scheduler) schedule(d, period time.Duration, name string, fn Task) Handle {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.nextID++
	s.nextSeq++
	e := &entry{
		id:     s.nextID,
		name:   name,
		due:    s.clk.Now().Add(d),
		seq:    s.nextSeq,
		period: period,
		epoch:  s.epoch,
		fn:     fn,
	}
	heap.Push(&s.queue, e)
	s.byID[e.id] = e
	s.mu.Unlock()

	s.notify()
	return Handle(e.id)
}

// Cancel removes a pending task. It returns false if the task already ran
// (one-shot) or was never scheduled.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[uint64(h)]
	if !ok {
		return false
	}
	delete(s.byID, e.id)
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
	return true
}

// Clear drops every pending task, including periodic tasks that are
// currently executing.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	for _, e := range s.queue {
		e.index = -1
	}
	s.queue = nil
	s.byID = make(map[uint64]*entry)
	s.epoch++
	s.mu.Unlock()

	s.notify()
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NextDue returns the due time of the earliest pending task.
func (s *Scheduler) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].due, true
}

// RunDue runs every task whose due time is not after the current clock
// time, in due order, and returns how many ran. Tasks scheduled for the
// current instant by a running task also run before RunDue returns.
func (s *Scheduler) RunDue(ctx context.Context) int {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ran := 0
	for ctx.Err() == nil {
		e := s.popDue(s.clk.Now())
		if e == nil {
			break
		}
		s.exec(ctx, e)
		ran++

		if e.period > 0 {
			s.reschedule(e)
		}
	}
	return ran
}

func (s *Scheduler) popDue(now time.Time) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].due.After(now) {
		return nil
	}
	e := heap.Pop(&s.queue).(*entry)
	if e.period == 0 {
		delete(s.byID, e.id)
	}
	return e
}

func (s *Scheduler) reschedule(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.epoch != s.epoch {
		return
	}
	if _, ok := s.byID[e.id]; !ok {
		return // cancelled while running
	}
	s.nextSeq++
	e.due = e.due.Add(e.period)
	e.seq = s.nextSeq
	heap.Push(&s.queue, e)
}

func (s *Scheduler) exec(ctx context.Context, e *entry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				slog.String("task", e.name),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	e.fn(ctx)
}

// Advance moves a mock clock forward by d, stopping at every due time on
// the way so tasks observe the clock value they were scheduled for. It
// panics if the scheduler is not driven by a *clock.Mock.
func (s *Scheduler) Advance(ctx context.Context, d time.Duration) {
	mock, ok := s.clk.(*clock.Mock)
	if !ok {
		panic("sched: Advance requires a mock clock")
	}
	target := mock.Now().Add(d)
	for ctx.Err() == nil {
		due, ok := s.NextDue()
		if !ok || due.After(target) {
			break
		}
		if due.After(mock.Now()) {
			mock.Set(due)
		}
		s.RunDue(ctx)
	}
	if target.After(mock.Now()) {
		mock.Set(target)
	}
	s.RunDue(ctx)
}

// Run executes tasks as they fall due on the scheduler clock until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started")
	defer s.logger.Info("scheduler stopped")

	for {
		s.RunDue(ctx)

		var timerC <-chan time.Time
		var timer *clock.Timer
		if due, ok := s.NextDue(); ok {
			timer = s.clk.Timer(due.Sub(s.clk.Now()))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-timerC:
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		}
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
