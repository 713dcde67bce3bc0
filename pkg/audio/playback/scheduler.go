// Package playback schedules decoded model audio onto a single output
// timeline so that consecutive chunks play back-to-back with no overlap and
// no gap beyond network arrival jitter.
//
// A [Scheduler] owns every unit it hands to the [Sink] from creation until
// the unit either ends naturally or is stopped by [Scheduler.Interrupt].
// [Timeline] is a software Sink and Clock that renders the schedule into a
// 16-bit PCM stream for a speaker device.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
)

// ErrClosed is returned by [Scheduler.Enqueue] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Voice is one buffer that a [Sink] has accepted for playback.
type Voice interface {
	// Stop silences the buffer immediately. The onEnded callback passed to
	// Schedule is not invoked for a stopped voice. Stop is idempotent.
	Stop()
}

// Sink plays buffers at absolute positions on the shared clock.
//
// Schedule must not invoke onEnded synchronously; it fires at most once, from
// another goroutine, when the buffer's last sample has played.
type Sink interface {
	Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (Voice, error)
}

// Unit describes a scheduled buffer.
type Unit struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration
}

// End returns the moment the unit finishes playing.
func (u Unit) End() time.Duration { return u.Start + u.Duration }

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Scheduled   uint64
	Completed   uint64
	Stopped     uint64
	Interrupts  uint64
	Active      int
	NextStart   time.Duration
	Initialized bool
}

// Scheduler places buffers contiguously on the clock in arrival order.
// All methods are safe for concurrent use.
type Scheduler struct {
	sink  Sink
	clock Clock

	mu          sync.Mutex
	nextStart   time.Duration
	initialized bool
	seq         uint64
	active      map[uint64]Voice
	closed      bool

	scheduled  uint64
	completed  uint64
	stopped    uint64
	interrupts uint64
}

// New creates a Scheduler that plays through sink, reading time from clock.
func New(sink Sink, clock Clock) *Scheduler {
	return &Scheduler{
		sink:   sink,
		clock:  clock,
		active: make(map[uint64]Voice),
	}
}

// Enqueue schedules buf to start when the previous unit ends, or now if the
// timeline has fallen behind the clock or was reset by an interrupt. If the
// sink rejects the buffer the scheduler is left untouched and the error is
// returned.
func (s *Scheduler) Enqueue(buf audio.Buffer) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Unit{}, ErrClosed
	}

	now := s.clock.Now()
	start := now
	if s.initialized && s.nextStart > now {
		start = s.nextStart
	}

	id := s.seq + 1
	voice, err := s.sink.Schedule(buf, start, func() { s.ended(id) })
	if err != nil {
		return Unit{}, fmt.Errorf("playback: schedule unit: %w", err)
	}

	unit := Unit{ID: id, Start: start, Duration: buf.Duration()}
	s.seq = id
	s.active[id] = voice
	s.nextStart = unit.End()
	s.initialized = true
	s.scheduled++
	return unit, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		delete(s.active, id)
		s.completed++
	}
}

// Interrupt stops every scheduled unit, forgets them, and resets the
// timeline so the next Enqueue starts at the clock's current time. It returns
// the number of units stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	snapshot := make([]Voice, 0, len(s.active))
	for _, v := range s.active {
		snapshot = append(snapshot, v)
	}
	clear(s.active)
	s.initialized = false
	s.nextStart = 0
	s.interrupts++
	s.stopped += uint64(len(snapshot))
	s.mu.Unlock()

	for _, v := range snapshot {
		v.Stop()
	}
	return len(snapshot)
}

// Active returns the number of units scheduled but not yet ended.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the end of the last scheduled unit. ok is false when
// nothing has been scheduled since creation or the last interrupt.
func (s *Scheduler) NextStart() (next time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart, s.initialized
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Scheduled:   s.scheduled,
		Completed:   s.completed,
		Stopped:     s.stopped,
		Interrupts:  s.interrupts,
		Active:      len(s.active),
		NextStart:   s.nextStart,
		Initialized: s.initialized,
	}
}

// Close stops all playback and makes further Enqueue calls fail with
// [ErrClosed]. Safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Interrupt()
	return nil
}
