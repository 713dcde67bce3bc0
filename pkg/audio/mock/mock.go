// Package mock provides in-memory mock implementations of [audio.Microphone]
// and [playback.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	mic := mock.NewMicrophone(audio.Format{SampleRate: 16000, Channels: 1})
//	_ = mic.Start(ctx)
//	mic.Emit(audio.Frame{Samples: make([]float32, 4096), SampleRate: 16000, Channels: 1})
//
//	sink := &mock.Sink{}
//	sched := playback.New(sink, clock)
//	sched.Enqueue(buf)
//	sink.End(0) // simulate natural completion of the first buffer
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ audio.Microphone = (*Microphone)(nil)
	_ playback.Sink    = (*Sink)(nil)
	_ playback.Voice   = (*Voice)(nil)
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone]. Frames pushed
// with [Microphone.Emit] are delivered on the channel returned by Frames.
// Each Start after a Stop opens a fresh frames channel.
type Microphone struct {
	// StartError is returned by Start. When non-nil the microphone stays
	// stopped.
	StartError error

	// StopError is returned by Stop.
	StopError error

	format audio.Format
	stream atomic.Pointer[micStream]

	mu      sync.Mutex
	started bool
	closed  bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// micStream is the frames channel of one Start/Stop cycle.
type micStream struct {
	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
}

func newMicStream() *micStream {
	return &micStream{
		frames: make(chan audio.Frame, 16),
		done:   make(chan struct{}),
	}
}

// NewMicrophone creates a mock microphone that reports format.
func NewMicrophone(format audio.Format) *Microphone {
	m := &Microphone{format: format}
	m.stream.Store(newMicStream())
	return m
}

// Start implements [audio.Microphone].
func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStart++
	if m.StartError != nil {
		return m.StartError
	}
	if m.closed {
		m.stream.Store(newMicStream())
		m.closed = false
	}
	m.started = true
	return nil
}

// Frames implements [audio.Microphone].
func (m *Microphone) Frames() <-chan audio.Frame { return m.stream.Load().frames }

// Format implements [audio.Microphone].
func (m *Microphone) Format() audio.Format { return m.format }

// Stop implements [audio.Microphone]. The current frames channel is closed on
// the first call.
func (m *Microphone) Stop() error {
	st := m.stream.Load()
	st.once.Do(func() { close(st.done) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountStop++
	if !m.closed && m.stream.Load() == st {
		m.closed = true
		m.started = false
		close(st.frames)
	}
	return m.StopError
}

// Started reports whether Start succeeded and Stop has not been called since.
func (m *Microphone) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Emit delivers f on the frames channel. It returns false without blocking
// further once the microphone has been stopped.
func (m *Microphone) Emit(f audio.Frame) bool {
	st := m.stream.Load()
	select {
	case <-st.done:
		return false
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.stream.Load() != st {
		return false
	}
	select {
	case <-st.done:
		return false
	case st.frames <- f:
		return true
	}
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// ScheduleCall records the arguments of a single [Sink.Schedule] invocation.
type ScheduleCall struct {
	// Buffer is the audio buffer passed to Schedule.
	Buffer audio.Buffer
	// At is the requested start time.
	At time.Duration
	// Voice is the voice returned for this call, nil when ScheduleError was set.
	Voice *Voice
}

// Sink is a mock implementation of [playback.Sink]. Buffers never end on
// their own; call [Sink.End] to simulate natural completion.
type Sink struct {
	mu sync.Mutex

	// ScheduleError is returned by Schedule when non-nil. Failed calls are
	// still recorded.
	ScheduleError error

	// ScheduleCalls records all Schedule invocations in order.
	ScheduleCalls []ScheduleCall
}

// Schedule implements [playback.Sink].
func (s *Sink) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (playback.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ScheduleError != nil {
		s.ScheduleCalls = append(s.ScheduleCalls, ScheduleCall{Buffer: buf, At: at})
		return nil, s.ScheduleError
	}
	v := &Voice{onEnded: onEnded}
	s.ScheduleCalls = append(s.ScheduleCalls, ScheduleCall{Buffer: buf, At: at, Voice: v})
	return v, nil
}

// Calls returns a copy of the recorded Schedule calls.
func (s *Sink) Calls() []ScheduleCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleCall, len(s.ScheduleCalls))
	copy(out, s.ScheduleCalls)
	return out
}

// End simulates natural completion of the i-th scheduled buffer. It is a no-op
// for stopped voices, failed calls and out-of-range indexes.
func (s *Sink) End(i int) {
	s.mu.Lock()
	if i < 0 || i >= len(s.ScheduleCalls) || s.ScheduleCalls[i].Voice == nil {
		s.mu.Unlock()
		return
	}
	v := s.ScheduleCalls[i].Voice
	s.mu.Unlock()
	v.end()
}

// Voice is the [playback.Voice] handed out by [Sink].
type Voice struct {
	mu      sync.Mutex
	onEnded func()
	ended   bool

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Stop implements [playback.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CallCountStop++
}

// Stopped reports whether Stop has been called at least once.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.CallCountStop > 0
}

func (v *Voice) end() {
	v.mu.Lock()
	if v.ended || v.CallCountStop > 0 {
		v.mu.Unlock()
		return
	}
	v.ended = true
	fn := v.onEnded
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}
