// Package sched runs tasks cooperatively: every task is a goroutine, but a
// task only executes while it holds one of the scheduler's slots. Tasks give
// the slot up at explicit yields and around blocking I/O.
package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// TaskFunc is the body of a task. It starts holding a slot.
type TaskFunc func(ctx context.Context, t *Task) error

// Observer receives scheduler events, typically to update metrics.
type Observer interface {
	TaskStarted()
	TaskDone()
	Yielded()
	Panicked()
}

type nopObserver struct{}

func (nopObserver) TaskStarted() {}
func (nopObserver) TaskDone()    {}
func (nopObserver) Yielded()     {}
func (nopObserver) Panicked()    {}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.obs = o
		}
	}
}

type Scheduler struct {
	sem    *semaphore.Weighted
	width  int
	log    zerolog.Logger
	obs    Observer
	wg     sync.WaitGroup
	active atomic.Int64
}

// New returns a scheduler with width slots; width < 1 is treated as 1.
func New(width int, opts ...Option) *Scheduler {
	if width < 1 {
		width = 1
	}
	s := &Scheduler{
		sem:   semaphore.NewWeighted(int64(width)),
		width: width,
		log:   zerolog.Nop(),
		obs:   nopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) Width() int { return s.width }

// Active reports the number of tasks that have started and not finished.
func (s *Scheduler) Active() int { return int(s.active.Load()) }

// Go starts a detached task. Its error or panic is logged, never returned.
func (s *Scheduler) Go(ctx context.Context, name string, fn TaskFunc) {
	s.begin()
	go func() {
		defer s.end()
		if err := s.run(ctx, name, fn); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Str("task", name).Msg("task failed")
		}
	}()
}

// Run runs an attached task on the calling goroutine and returns its error.
func (s *Scheduler) Run(ctx context.Context, name string, fn TaskFunc) error {
	s.begin()
	defer s.end()
	return s.run(ctx, name, fn)
}

// Wait blocks until every task started with Go or Run has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) begin() {
	s.wg.Add(1)
	s.active.Add(1)
	s.obs.TaskStarted()
}

func (s *Scheduler) end() {
	s.active.Add(-1)
	s.obs.TaskDone()
	s.wg.Done()
}

func (s *Scheduler) run(ctx context.Context, name string, fn TaskFunc) (err error) {
	t := &Task{s: s, name: name}
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			s.obs.Panicked()
			s.log.Error().Str("task", name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("task panicked")
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		t.release()
	}()
	return fn(ctx, t)
}

// Task is the handle a running task uses to give up its slot.
type Task struct {
	s    *Scheduler
	name string
	held bool
}

func (t *Task) Name() string { return t.name }

// Yield lets every task already waiting for a slot run before t resumes.
func (t *Task) Yield(ctx context.Context) error {
	t.s.obs.Yielded()
	t.release()
	return t.acquire(ctx)
}

// Block runs fn without holding a slot and re-acquires one afterwards.
// fn's error is returned unless re-acquiring fails first.
func (t *Task) Block(ctx context.Context, fn func() error) error {
	t.release()
	ferr := fn()
	if err := t.acquire(ctx); err != nil {
		return err
	}
	return ferr
}

func (t *Task) acquire(ctx context.Context) error {
	if t.held {
		return nil
	}
	if err := t.s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	t.held = true
	return nil
}

func (t *Task) release() {
	if t.held {
		t.held = false
		t.s.sem.Release(1)
	}
}
