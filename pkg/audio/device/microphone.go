// Package device binds the audio boundary interfaces to the host's sound
// hardware: [Microphone] captures through miniaudio (malgo) and [Speaker]
// plays a [playback.Timeline] through oto.
//
// Both types hold OS audio resources. Callers must Stop or Close them.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
)

// Compile-time interface assertion.
var _ audio.Microphone = (*Microphone)(nil)

// MicOption configures a [Microphone].
type MicOption func(*Microphone)

// WithFrameSize sets the number of samples per delivered frame.
func WithFrameSize(n int) MicOption {
	return func(m *Microphone) {
		if n > 0 {
			m.frameSize = n
		}
	}
}

// WithFrameBuffer sets the capacity of the frames channel. Frames that do not
// fit are dropped.
func WithFrameBuffer(n int) MicOption {
	return func(m *Microphone) {
		if n > 0 {
			m.frameBuf = n
		}
	}
}

// Microphone captures mono 16-bit audio from the default input device and
// delivers it as fixed-size float frames.
type Microphone struct {
	format    audio.Format
	frameSize int
	frameBuf  int

	mu      sync.Mutex
	frames  chan audio.Frame
	mctx    *malgo.AllocatedContext
	dev     *malgo.Device
	pending []float32
	total   int64
	dropped int64
	started bool
	closed  bool
}

// NewMicrophone prepares a microphone at the given sample rate. No device is
// opened until Start.
func NewMicrophone(sampleRate int, opts ...MicOption) *Microphone {
	m := &Microphone{
		format:    audio.Format{SampleRate: sampleRate, Channels: 1},
		frameSize: pcm.CaptureFrameSize,
		frameBuf:  8,
	}
	for _, o := range opts {
		o(m)
	}
	m.pending = make([]float32, 0, m.frameSize)
	m.frames = make(chan audio.Frame, m.frameBuf)
	return m
}

// Format implements [audio.Microphone].
func (m *Microphone) Format() audio.Format { return m.format }

// Frames implements [audio.Microphone]. The channel is closed by Stop and
// replaced by the next Start.
func (m *Microphone) Frames() <-chan audio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Start opens the default capture device and begins delivering frames. It
// fails if the host has no usable input device or permission is denied. A
// stopped microphone may be started again.
func (m *Microphone) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if m.closed {
		m.frames = make(chan audio.Frame, m.frameBuf)
		m.pending = m.pending[:0]
		m.total, m.dropped = 0, 0
		m.closed = false
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return fmt.Errorf("device: init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.format.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: m.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device: open microphone: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device: start microphone: %w", err)
	}

	m.mctx = mctx
	m.dev = dev
	m.started = true
	slog.Info("microphone started", "format", m.format.String(), "frame_size", m.frameSize)
	return nil
}

// onData runs on the malgo audio thread.
func (m *Microphone) onData(_, input []byte, _ uint32) {
	samples := pcm.PCM16ToFloat32(input)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for len(samples) > 0 {
		n := min(m.frameSize-len(m.pending), len(samples))
		m.pending = append(m.pending, samples[:n]...)
		samples = samples[n:]
		if len(m.pending) < m.frameSize {
			break
		}

		f := audio.Frame{
			Samples:    m.pending,
			SampleRate: m.format.SampleRate,
			Channels:   1,
			Timestamp:  time.Duration(m.total) * time.Second / time.Duration(m.format.SampleRate),
		}
		m.total += int64(m.frameSize)
		m.pending = make([]float32, 0, m.frameSize)

		select {
		case m.frames <- f:
		default:
			m.dropped++
		}
	}
}

// Stop releases the capture device and closes the frames channel. It is
// idempotent and safe to call before Start.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.started = false
	dev, mctx := m.dev, m.mctx
	m.dev, m.mctx = nil, nil
	dropped := m.dropped
	close(m.frames)
	m.mu.Unlock()

	var err error
	if dev != nil {
		if stopErr := dev.Stop(); stopErr != nil {
			err = fmt.Errorf("device: stop microphone: %w", stopErr)
		}
		dev.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	if dropped > 0 {
		slog.Warn("microphone dropped frames", "count", dropped)
	}
	return err
}
