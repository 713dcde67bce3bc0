package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/pcm"
)

// Compile-time interface assertions.
var (
	_ Sink      = (*Timeline)(nil)
	_ Clock     = (*Timeline)(nil)
	_ io.Reader = (*Timeline)(nil)
)

// ErrSampleRate is returned by [Timeline.Schedule] for buffers whose sample
// rate differs from the timeline's.
var ErrSampleRate = errors.New("playback: sample rate mismatch")

// Timeline is a software [Sink] that mixes scheduled buffers into a stream of
// 16-bit little-endian PCM. Its [Clock] advances only as samples are read, so
// the schedule stays locked to what the output device has consumed.
//
// Read never blocks: when nothing is scheduled it produces silence. Once
// closed it returns [io.EOF].
type Timeline struct {
	format audio.Format

	mu     sync.Mutex
	pos    int64 // frames rendered so far
	voices []*voice
	closed bool
}

type voice struct {
	tl      *Timeline
	start   int64
	data    [][]float32
	onEnded func()
	stopped bool
}

// NewTimeline creates a timeline rendering at the given output format.
// Channels below 1 are treated as mono.
func NewTimeline(format audio.Format) *Timeline {
	if format.Channels < 1 {
		format.Channels = 1
	}
	return &Timeline{format: format}
}

// Format returns the output format of the rendered stream.
func (t *Timeline) Format() audio.Format { return t.format }

// Now implements [Clock]: the duration of audio rendered so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesToDuration(t.pos)
}

// Schedule implements [Sink]. A position already in the past starts
// immediately.
func (t *Timeline) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (Voice, error) {
	if buf.SampleRate != t.format.SampleRate {
		return nil, fmt.Errorf("%w: buffer %d Hz, output %d Hz", ErrSampleRate, buf.SampleRate, t.format.SampleRate)
	}
	if buf.NumChannels() == 0 {
		return nil, fmt.Errorf("playback: schedule: buffer has no channels")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	start := max(t.durationToFrames(at), t.pos)
	v := &voice{tl: t, start: start, data: buf.Data, onEnded: onEnded}
	t.voices = append(t.voices, v)
	return v, nil
}

// Stop implements [Voice].
func (v *voice) Stop() {
	t := v.tl
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.stopped {
		return
	}
	v.stopped = true
	t.removeLocked(v)
}

func (v *voice) end() int64 { return v.start + int64(len(v.data[0])) }

// sample returns the voice's sample for output channel ch at absolute frame f.
func (v *voice) sample(ch int, f int64) float32 {
	if ch >= len(v.data) {
		ch = len(v.data) - 1
	}
	return v.data[ch][f-v.start]
}

// Read renders the next len(p)/(2*channels) frames. Voices that finish within
// the rendered span have their onEnded callbacks run before Read returns.
func (t *Timeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}

	channels := t.format.Channels
	frames := int64(len(p) / (2 * channels))
	for i := range frames {
		f := t.pos + i
		for ch := range channels {
			var mix float32
			for _, v := range t.voices {
				if f >= v.start && f < v.end() {
					mix += v.sample(ch, f)
				}
			}
			off := (int(i)*channels + ch) * 2
			binary.LittleEndian.PutUint16(p[off:], uint16(pcm.Quantize(mix)))
		}
	}
	t.pos += frames

	var done []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		if v.end() <= t.pos {
			if v.onEnded != nil {
				done = append(done, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.mu.Unlock()

	for _, fn := range done {
		fn()
	}
	return int(frames) * 2 * channels, nil
}

// Pending returns the number of voices that have not finished or been
// stopped.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Close drops every pending voice without running callbacks. Subsequent
// reads return [io.EOF] and Schedule fails with [ErrClosed].
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = nil
	return nil
}

func (t *Timeline) removeLocked(target *voice) {
	for i, v := range t.voices {
		if v == target {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			return
		}
	}
}

func (t *Timeline) framesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(t.format.SampleRate)
}

func (t *Timeline) durationToFrames(d time.Duration) int64 {
	return int64((d*time.Duration(t.format.SampleRate) + time.Second/2) / time.Second)
}
