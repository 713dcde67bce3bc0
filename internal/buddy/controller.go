// Package buddy supervises a single realtime voice session.
//
// A [Controller] owns the microphone, the live transport connection and the
// capture pipeline for the lifetime of one session, routes inbound model
// events to the playback scheduler and the rolling transcript, and exposes
// the lifecycle as a small state machine:
//
//	Idle ──Start──▶ Connecting ──open──▶ Active ──Stop/close──▶ Closing ──▶ Idle
//	                    │                  │
//	                    └──────error───────┴──▶ Errored ──Start──▶ Connecting
//
// An error also passes through Closing while the session's resources are
// released, so a retry cannot overlap the previous teardown.
//
// Only one session exists at a time. Every session gets a fresh generation
// number; events from a transport that belongs to an earlier generation are
// dropped.
package buddy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramadascd1-rgb/FUNtastic/internal/observe"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/capture"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/playback"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
)

// Default format of inbound model audio when an event does not declare one.
const (
	DefaultOutputRate     = pcm.PlaybackSampleRate
	DefaultOutputChannels = 1
)

// Config holds the collaborators and tuning for a [Controller].
type Config struct {
	// Microphone is acquired on Start and released when the session ends.
	Microphone audio.Microphone

	// Provider opens the live transport.
	Provider live.Provider

	// Scheduler receives decoded model audio. It outlives sessions and is
	// flushed whenever a session ends.
	Scheduler *playback.Scheduler

	// Live is passed to Provider.Connect.
	Live live.Config

	// TranscriptLines is the rolling transcript window. Zero selects
	// [DefaultTranscriptLines].
	TranscriptLines int

	// SendQueue is the capture pipeline queue size. Zero selects
	// [capture.DefaultQueueSize].
	SendQueue int

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State     State  `json:"state"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`

	// Transcript is only populated while Active.
	Transcript []TranscriptLine `json:"transcript,omitempty"`

	Playback playback.Stats `json:"playback"`
	Capture  capture.Stats  `json:"capture"`
}

// session holds everything acquired for one generation.
type session struct {
	gen       uint64
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	startDone chan struct{}

	micStarted bool
	conn       live.Conn
	pipeline   *capture.Pipeline
	pumpDone   chan struct{}

	// callbacks counts observer calls in flight on Start's goroutine or the
	// pump. release must not wait for a goroutine that is calling it.
	callbacks atomic.Int32
}

// Controller runs the session state machine. All exported methods are safe
// for concurrent use.
type Controller struct {
	mic       audio.Microphone
	provider  live.Provider
	scheduler *playback.Scheduler
	liveCfg   live.Config
	sendQueue int
	metrics   *observe.Metrics

	mu          sync.Mutex
	state       State
	status      string
	gen         uint64
	sess        *session
	transcript  *Transcript
	lastCapture capture.Stats

	obsMu     sync.Mutex
	observers []func(Snapshot)
}

// New validates cfg and returns an idle controller.
func New(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if cfg.Provider == nil {
		errs = append(errs, errors.New("live provider is required"))
	}
	if cfg.Scheduler == nil {
		errs = append(errs, errors.New("playback scheduler is required"))
	}
	if cfg.TranscriptLines < 0 {
		errs = append(errs, fmt.Errorf("transcript lines must be >= 0, got %d", cfg.TranscriptLines))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("buddy: invalid config: %w", err)
	}

	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Controller{
		mic:        cfg.Microphone,
		provider:   cfg.Provider,
		scheduler:  cfg.Scheduler,
		liveCfg:    cfg.Live,
		sendQueue:  cfg.SendQueue,
		metrics:    m,
		state:      StateIdle,
		status:     StatusReady,
		transcript: NewTranscript(cfg.TranscriptLines),
	}, nil
}

// OnChange registers fn to receive a snapshot after every state change and
// every transcript update. Observers run outside the controller lock and may
// call back into the controller, including Stop.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) notify(s Snapshot) {
	c.obsMu.Lock()
	obs := slices.Clone(c.observers)
	c.obsMu.Unlock()
	for _, fn := range obs {
		fn(s)
	}
}

// notifySession publishes s from a goroutine that release waits for.
func (c *Controller) notifySession(sess *session, s Snapshot) {
	sess.callbacks.Add(1)
	defer sess.callbacks.Add(-1)
	c.notify(s)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state, status line, session ID, transcript
// and pipeline counters.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    c.state,
		Status:   c.status,
		Playback: c.scheduler.Stats(),
		Capture:  c.lastCapture,
	}
	if c.sess != nil {
		s.SessionID = c.sess.id
		if c.sess.pipeline != nil {
			s.Capture = c.sess.pipeline.Stats()
		}
	}
	if c.state == StateActive {
		s.Transcript = c.transcript.Lines()
	}
	return s
}

// transitionLocked moves to state with the given status line and returns the
// snapshot to publish once the lock is released.
func (c *Controller) transitionLocked(to State, status string) Snapshot {
	from := c.state
	c.state = to
	c.status = status

	ctx := context.Background()
	if from != to {
		c.metrics.RecordStateTransition(ctx, from.String(), to.String())
		if from == StateActive {
			c.metrics.ActiveSessions.Add(ctx, -1)
		}
		if to == StateActive {
			c.metrics.ActiveSessions.Add(ctx, 1)
		}
		slog.Debug("buddy: state transition", "from", from, "to", to, "status", status)
	}
	return c.snapshotLocked()
}

// Start acquires the microphone and opens the live transport. It returns once
// the transport is connected; the controller becomes Active when the model
// confirms the session.
//
// Start is legal from Idle and Errored. Otherwise it returns
// [ErrAlreadyActive]. A microphone failure returns an [*AcquisitionError] and
// leaves the controller Idle; a transport failure returns a
// [*ConnectionError] and leaves it Errored.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateActive, StateClosing:
		state := c.state
		c.mu.Unlock()
		slog.Debug("buddy: start rejected", "state", state)
		return ErrAlreadyActive
	}

	c.gen++
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		gen:       c.gen,
		id:        uuid.NewString(),
		ctx:       sessCtx,
		cancel:    cancel,
		startedAt: time.Now(),
		startDone: make(chan struct{}),
	}
	defer close(sess.startDone)
	c.sess = sess
	c.lastCapture = capture.Stats{}
	c.transcript.Reset()
	snap := c.transitionLocked(StateConnecting, StatusConnecting)
	c.mu.Unlock()
	c.notifySession(sess, snap)
	if sessCtx.Err() != nil {
		return ErrStopped
	}

	log := slog.With("session_id", sess.id, "generation", sess.gen)

	// Stop cancels the session context, which must also abort a dial in
	// progress.
	dialCtx, stopDial := context.WithCancel(ctx)
	defer stopDial()
	unhook := context.AfterFunc(sessCtx, stopDial)
	defer unhook()

	if err := c.mic.Start(dialCtx); err != nil {
		log.Warn("buddy: microphone acquisition failed", "err", err)
		_ = c.mic.Stop()
		if !c.abortStart(sess, StateIdle, StatusCouldNotStart) {
			return ErrStopped
		}
		return &AcquisitionError{Err: err}
	}

	conn, err := c.connect(dialCtx, sess)
	if err != nil {
		log.Warn("buddy: transport connect failed", "err", err)
		_ = c.mic.Stop()
		if !c.abortStart(sess, StateErrored, StatusDisconnected) {
			return ErrStopped
		}
		return &ConnectionError{Err: err}
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		_ = conn.Close()
		audio.Drain(conn.Events())
		_ = c.mic.Stop()
		return ErrStopped
	}
	sess.micStarted = true
	sess.conn = conn
	sess.pumpDone = make(chan struct{})
	c.mu.Unlock()

	go c.pump(sess, conn)

	log.Info("buddy: session connected", "model", c.liveCfg.Model)
	return nil
}

func (c *Controller) connect(ctx context.Context, sess *session) (live.Conn, error) {
	ctx, span := observe.StartSpan(observe.WithSessionID(ctx, sess.id), "buddy.connect")
	defer span.End()

	start := time.Now()
	conn, err := c.provider.Connect(ctx, c.liveCfg)
	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return conn, nil
}

// abortStart ends a failed start attempt. It reports false when the attempt
// had already been superseded by Stop.
func (c *Controller) abortStart(sess *session, to State, status string) bool {
	sess.cancel()
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return false
	}
	c.sess = nil
	snap := c.transitionLocked(to, status)
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// Stop ends the current session: capture stops, the transport is closed, the
// microphone is released and queued playback is flushed. It is a no-op in
// Idle and safe to call repeatedly.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateClosing:
		c.mu.Unlock()
		return nil
	case StateErrored:
		snap := c.transitionLocked(StateIdle, StatusReady)
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}

	sess := c.detachLocked()
	snap := c.transitionLocked(StateClosing, StatusClosing)
	c.mu.Unlock()
	c.notify(snap)

	err := c.release(sess, true)

	c.finishClosing(StateIdle, StatusReady)
	slog.Info("buddy: session stopped", "session_id", sess.id)
	if err != nil {
		return fmt.Errorf("buddy: stop: %w", err)
	}
	return nil
}

// detachLocked takes ownership of the current session away from the
// controller so events still in flight for it are ignored.
func (c *Controller) detachLocked() *session {
	sess := c.sess
	c.sess = nil
	if sess != nil && sess.pipeline != nil {
		c.lastCapture = sess.pipeline.Stats()
	}
	return sess
}

// finishClosing leaves Closing once a release has completed.
func (c *Controller) finishClosing(to State, status string) {
	c.mu.Lock()
	if c.state != StateClosing {
		c.mu.Unlock()
		return
	}
	snap := c.transitionLocked(to, status)
	c.mu.Unlock()
	c.notify(snap)
}

// release tears down everything sess acquired and flushes playback. When
// wait is set it also waits for a pending Start and the event pump to exit,
// unless one of them is the caller through an observer; the pump itself
// passes false.
func (c *Controller) release(sess *session, wait bool) error {
	if sess == nil {
		return nil
	}
	sess.cancel()

	var errs []error
	if sess.pipeline != nil {
		sess.pipeline.Stop()
	}
	if sess.conn != nil {
		if err := sess.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if sess.micStarted {
		if err := c.mic.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("release microphone: %w", err))
		}
	}
	if n := c.scheduler.Interrupt(); n > 0 {
		slog.Debug("buddy: flushed playback", "session_id", sess.id, "stopped", n)
	}
	if wait && sess.callbacks.Load() == 0 {
		<-sess.startDone
		if sess.pumpDone != nil {
			<-sess.pumpDone
		}
	}

	slog.Debug("buddy: session released",
		"session_id", sess.id,
		"duration", time.Since(sess.startedAt),
	)
	return errors.Join(errs...)
}

// pump feeds one connection's events into the dispatcher until the
// connection's event stream closes.
func (c *Controller) pump(sess *session, conn live.Conn) {
	defer close(sess.pumpDone)
	for ev := range conn.Events() {
		c.dispatch(sess, ev, false)
	}
}

// Dispatch applies one inbound event to the current session. Events that are
// not legal in the current state are ignored.
func (c *Controller) Dispatch(ev live.Event) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		slog.Debug("buddy: event ignored without session", "event", ev)
		return
	}
	c.dispatch(sess, ev, true)
}

func (c *Controller) dispatch(sess *session, ev live.Event, wait bool) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		slog.Debug("buddy: stale event ignored", "session_id", sess.id, "event", ev)
		return
	}

	switch e := ev.(type) {
	case live.EventOpen:
		// The transport is attached only once Start's dial has returned.
		if c.state != StateConnecting || sess.conn == nil {
			c.ignoreLocked(ev)
			return
		}
		p := capture.New(c.mic, sess.conn,
			capture.WithQueueSize(c.sendQueue),
			capture.WithChunkHandler(func(audio.EncodedChunk) {
				c.metrics.ChunksSent.Add(sess.ctx, 1)
			}),
			capture.WithErrorHandler(func(err *capture.TransmissionError) {
				reason := "send"
				if errors.Is(err, capture.ErrQueueFull) {
					reason = "queue_full"
				}
				c.metrics.RecordChunkDropped(sess.ctx, reason)
			}),
		)
		sess.pipeline = p
		p.Start(sess.ctx)
		snap := c.transitionLocked(StateActive, StatusListening)
		c.mu.Unlock()
		c.notifySession(sess, snap)
		slog.Info("buddy: session active", "session_id", sess.id)

	case live.EventAudio:
		if c.state != StateActive {
			c.ignoreLocked(ev)
			return
		}
		c.playLocked(sess, e)
		c.mu.Unlock()

	case live.EventTranscript:
		if c.state != StateActive {
			c.ignoreLocked(ev)
			return
		}
		c.transcript.Append(TranscriptLine{Role: e.Role, Text: e.Text})
		c.metrics.RecordTranscriptLine(sess.ctx, string(e.Role))
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notifySession(sess, snap)

	case live.EventInterrupted:
		if c.state != StateActive {
			c.ignoreLocked(ev)
			return
		}
		n := c.scheduler.Interrupt()
		c.metrics.Interruptions.Add(sess.ctx, 1)
		c.mu.Unlock()
		slog.Debug("buddy: playback interrupted", "session_id", sess.id, "stopped", n)

	case live.EventError:
		if c.state != StateConnecting && c.state != StateActive {
			c.ignoreLocked(ev)
			return
		}
		c.detachLocked()
		snap := c.transitionLocked(StateClosing, StatusClosing)
		c.mu.Unlock()
		c.notify(snap)
		slog.Warn("buddy: transport error", "session_id", sess.id, "err", e.Err)
		if err := c.release(sess, wait); err != nil {
			slog.Warn("buddy: release after error", "session_id", sess.id, "err", err)
		}
		c.finishClosing(StateErrored, StatusDisconnected)

	case live.EventClose:
		if c.state != StateConnecting && c.state != StateActive {
			c.ignoreLocked(ev)
			return
		}
		c.detachLocked()
		snap := c.transitionLocked(StateClosing, StatusClosing)
		c.mu.Unlock()
		c.notify(snap)
		slog.Info("buddy: remote closed session", "session_id", sess.id, "reason", e.Reason)
		if err := c.release(sess, wait); err != nil {
			slog.Warn("buddy: release after close", "session_id", sess.id, "err", err)
		}
		c.finishClosing(StateIdle, StatusRemoteClosed)

	default:
		c.ignoreLocked(ev)
	}
}

// ignoreLocked logs an event that is not legal in the current state and
// releases the lock.
func (c *Controller) ignoreLocked(ev live.Event) {
	state := c.state
	c.mu.Unlock()
	slog.Debug("buddy: event ignored", "state", state, "event", ev)
}

// playLocked decodes one audio event and schedules it. Malformed payloads
// are logged and dropped; the session stays Active.
func (c *Controller) playLocked(sess *session, e live.EventAudio) {
	rate, channels := e.SampleRate, e.Channels
	if rate <= 0 {
		rate = DefaultOutputRate
	}
	if channels <= 0 {
		channels = DefaultOutputChannels
	}

	raw, err := pcm.Decode(e.Data)
	if err != nil {
		c.dropAudio(sess, "decode", err)
		return
	}
	buf, err := pcm.DecodeAudioData(raw, rate, channels)
	if err != nil {
		c.dropAudio(sess, "format", err)
		return
	}
	if buf.Len() == 0 {
		return
	}
	if _, err := c.scheduler.Enqueue(buf); err != nil {
		c.dropAudio(sess, "schedule", err)
		return
	}
	c.metrics.PlaybackUnits.Add(sess.ctx, 1)
}

func (c *Controller) dropAudio(sess *session, reason string, err error) {
	c.metrics.RecordChunkDropped(sess.ctx, reason)
	slog.Warn("buddy: dropped audio chunk", "session_id", sess.id, "reason", reason, "err", err)
}
