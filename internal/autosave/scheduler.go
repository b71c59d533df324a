// Package autosave debounces tree mutations into infrequent persistence calls
// and exposes the save-status state machine the UI renders. Rapid
// keystroke-level edits must never each trigger a remote write; a mutation
// (re)starts a quiet-period timer and only its expiry saves.
package autosave

import (
	"context"
	"sync"
	"time"
)

// State is the scheduler's externally visible status.
type State string

const (
	StateIdle   State = "idle"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

// SaveFunc performs one persistence attempt.
type SaveFunc func(ctx context.Context) error

// Timer is the cancellable handle a Clock hands out.
type Timer interface {
	Stop() bool
}

// Clock abstracts timer creation so tests can drive a virtual clock instead
// of sleeping.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock {
	return systemClock{}
}

// Scheduler owns the debounce timer and guarantees at most one save in
// flight. A save request arriving while one is pending is coalesced into the
// next quiet window, never run concurrently. The save itself runs
// synchronously in the goroutine that triggered it (the timer's goroutine for
// autosaves, the caller's for SaveNow); an in-flight save is always awaited to
// completion before the next one starts.
type Scheduler struct {
	mu           sync.Mutex
	state        State
	interval     time.Duration
	clock        Clock
	save         SaveFunc
	onState      func(State)
	timer        Timer
	inFlight     bool
	pendingDirty bool
}

// New builds a scheduler in the idle state. onState may be nil; when set it is
// invoked on every state change and must not call back into the scheduler.
func New(interval time.Duration, clock Clock, save SaveFunc, onState func(State)) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		state:    StateIdle,
		interval: interval,
		clock:    clock,
		save:     save,
		onState:  onState,
	}
}

// State returns the current status.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkDirty records a mutation: the scheduler goes dirty and the quiet-period
// timer restarts. A mutation arriving while a save is in flight is coalesced
// into the window that opens when the save resolves.
func (s *Scheduler) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		s.pendingDirty = true
		return
	}
	s.setState(StateDirty)
	s.restartTimer()
}

// SaveNow bypasses the timer, cancels any pending one, and performs the save
// immediately (unless one is already in flight, in which case the request is
// coalesced). It blocks until the save resolves and returns its error.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimer()
	if s.inFlight {
		s.pendingDirty = true
		s.mu.Unlock()
		return nil
	}
	return s.runSave(ctx)
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	if s.state != StateDirty || s.inFlight {
		s.mu.Unlock()
		return
	}
	_ = s.runSave(context.Background())
}

// runSave is entered with the mutex held and returns with it released.
func (s *Scheduler) runSave(ctx context.Context) error {
	s.inFlight = true
	s.setState(StateSaving)
	s.mu.Unlock()

	err := s.save(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	switch {
	case err != nil:
		s.setState(StateError)
		if s.pendingDirty {
			// The next edit normally flips error back to dirty; one already
			// happened while we were saving.
			s.pendingDirty = false
			s.setState(StateDirty)
			s.restartTimer()
		}
	case s.pendingDirty:
		s.pendingDirty = false
		s.setState(StateDirty)
		s.restartTimer()
	default:
		s.setState(StateSaved)
		s.timer = s.clock.AfterFunc(s.interval, s.onSavedSettled)
	}
	return err
}

// onSavedSettled moves saved back to idle after a quiet period, so the UI's
// "saved" badge does not stick forever.
func (s *Scheduler) onSavedSettled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaved && !s.inFlight {
		s.setState(StateIdle)
	}
}

func (s *Scheduler) restartTimer() {
	s.stopTimer()
	s.timer = s.clock.AfterFunc(s.interval, s.onTimer)
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) setState(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.onState != nil {
		s.onState(next)
	}
}
