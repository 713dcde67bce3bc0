// Package capture turns microphone frames into encoded chunks and streams them
// to a realtime transport without ever letting the network stall the capture
// path.
//
// Frames are encoded on arrival and pushed to a bounded FIFO. A single sender
// goroutine drains the FIFO in order. When the FIFO is full the newest frame is
// dropped; when a send fails the chunk is dropped. Neither stops capture.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
)

// DefaultQueueSize is the send queue capacity when none is configured. At
// 4096 samples per frame and 16 kHz this is a little over eight seconds.
const DefaultQueueSize = 32

// Sender delivers one encoded chunk to the remote model.
type Sender interface {
	SendRealtimeInput(ctx context.Context, chunk audio.EncodedChunk) error
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Captured uint64
	Sent     uint64
	Dropped  uint64
	Failed   uint64
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithQueueSize sets the send queue capacity. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithErrorHandler registers fn to be called for every chunk that is dropped
// or fails to send. fn runs on the capture or sender goroutine and must not
// block.
func WithErrorHandler(fn func(*TransmissionError)) Option {
	return func(p *Pipeline) {
		p.onError = fn
	}
}

// WithChunkHandler registers fn to be called after every successful send.
func WithChunkHandler(fn func(audio.EncodedChunk)) Option {
	return func(p *Pipeline) {
		p.onSent = fn
	}
}

// Pipeline moves frames from an [audio.Microphone] to a [Sender].
type Pipeline struct {
	mic       audio.Microphone
	sender    Sender
	queueSize int
	onError   func(*TransmissionError)
	onSent    func(audio.EncodedChunk)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool

	seq      atomic.Uint64
	captured atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

type queued struct {
	seq   uint64
	chunk audio.EncodedChunk
}

// New creates a pipeline reading from mic and writing to sender. The
// microphone must be started by the caller; the pipeline only consumes
// its frames.
func New(mic audio.Microphone, sender Sender, opts ...Option) *Pipeline {
	p := &Pipeline{
		mic:       mic,
		sender:    sender,
		queueSize: DefaultQueueSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the capture and sender goroutines. They run until ctx is
// cancelled, [Pipeline.Stop] is called, or the microphone's frame channel
// closes. Calling Start more than once is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	queue := make(chan queued, p.queueSize)

	p.wg.Go(func() { p.captureLoop(ctx, queue) })
	p.wg.Go(func() { p.sendLoop(ctx, queue) })
}

// Stop cancels both goroutines and waits for them to exit. Chunks still
// queued are discarded. Stop is idempotent and safe before Start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Captured: p.captured.Load(),
		Sent:     p.sent.Load(),
		Dropped:  p.dropped.Load(),
		Failed:   p.failed.Load(),
	}
}

func (p *Pipeline) captureLoop(ctx context.Context, queue chan<- queued) {
	defer close(queue)

	frames := p.mic.Frames()
	format := p.mic.Format()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			p.captured.Add(1)
			if f.SampleRate <= 0 {
				f.SampleRate = format.SampleRate
			}
			if f.Channels <= 0 {
				f.Channels = format.Channels
			}
			item := queued{
				seq:   p.seq.Add(1),
				chunk: pcm.EncodeChunk(f.Channel(0), f.SampleRate),
			}
			select {
			case queue <- item:
			default:
				p.dropped.Add(1)
				p.report(&TransmissionError{Seq: item.seq, Err: ErrQueueFull})
			}
		}
	}
}

func (p *Pipeline) sendLoop(ctx context.Context, queue <-chan queued) {
	for item := range queue {
		if ctx.Err() != nil {
			continue
		}
		if err := p.sender.SendRealtimeInput(ctx, item.chunk); err != nil {
			p.failed.Add(1)
			p.report(&TransmissionError{Seq: item.seq, Err: err})
			continue
		}
		p.sent.Add(1)
		if p.onSent != nil {
			p.onSent(item.chunk)
		}
	}
}

func (p *Pipeline) report(err *TransmissionError) {
	slog.Warn("capture: dropping chunk", "seq", err.Seq, "err", err.Err)
	if p.onError != nil {
		p.onError(err)
	}
}
