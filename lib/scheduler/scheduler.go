// Package scheduler runs one asynchronous computation at a time and lets
// callers observe it through non-blocking polls.
//
// Each Submit supersedes the previous task: the old computation is neither
// joined nor stopped, its completion is absorbed internally and its result
// discarded. Poll delivers a ready result exactly once, after which the
// task id behaves like any other stale id.
package scheduler

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Status is the observable state of a submitted task.
type Status uint8

const (
	// Pending means the computation has not finished.
	Pending Status = iota
	// Ready means the result is available and has now been delivered.
	Ready
	// Cancelled means the task id is stale or unknown.
	Cancelled
)

type state uint8

const (
	stateIdle state = iota
	stateRunning
	stateDone
)

// Scheduler supervises one computation slot. The zero value is not usable;
// construct with New. All methods are safe for concurrent use.
type Scheduler[T any] struct {
	compute func(query string) T

	mu     sync.Mutex
	lastID uint64
	state  state
	result T
}

// New returns a Scheduler that runs compute for each submitted query.
// A panic inside compute is recovered and degrades to the zero result.
func New[T any](compute func(query string) T) *Scheduler[T] {
	return &Scheduler[T]{compute: compute}
}

// Submit allocates the next task id and starts computing the result for
// query on its own goroutine. Any previously running task becomes
// unobservable: its id will poll as Cancelled from now on.
func (s *Scheduler[T]) Submit(query string) uint64 {
	s.mu.Lock()
	s.lastID++
	id := s.lastID
	s.state = stateRunning
	var zero T
	s.result = zero
	s.mu.Unlock()

	go func() {
		result := s.run(query)

		s.mu.Lock()
		defer s.mu.Unlock()
		// A newer Submit may have taken the slot while we computed; in
		// that case the result is silently dropped.
		if s.lastID == id && s.state == stateRunning {
			s.state = stateDone
			s.result = result
		}
	}()

	return id
}

// Poll reports the state of the given task id without blocking. A ready
// result is returned exactly once; afterwards the slot is idle and the
// same id reports Cancelled.
func (s *Scheduler[T]) Poll(taskID uint64) (T, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if taskID != s.lastID || s.state == stateIdle {
		return zero, Cancelled
	}
	if s.state == stateRunning {
		return zero, Pending
	}

	result := s.result
	s.state = stateIdle
	s.result = zero
	return result, Ready
}

func (s *Scheduler[T]) run(query string) (result T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("match computation panicked")
			var zero T
			result = zero
		}
	}()
	return s.compute(query)
}
