package playback_test

import (
	"encoding/binary"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/playback"
)

func constBuffer(v float32, n int) audio.Buffer {
	data := make([]float32, n)
	for i := range data {
		data[i] = v
	}
	return audio.Buffer{Data: [][]float32{data}, SampleRate: rate}
}

// read pulls n mono frames from tl and returns them as int16 samples.
func read(t *testing.T, tl *playback.Timeline, n int) []int16 {
	t.Helper()
	p := make([]byte, n*2)
	got, err := tl.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != len(p) {
		t.Fatalf("Read = %d bytes, want %d", got, len(p))
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func TestTimeline_SilenceWhenIdle(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})
	for i, s := range read(t, tl, 240) {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence", i, s)
		}
	}
	if got := tl.Now(); got != 10*time.Millisecond {
		t.Errorf("Now = %v, want 10ms", got)
	}
}

func TestTimeline_RendersAtScheduledPosition(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})

	var ended atomic.Int32
	// 24 frames = 1ms at 24 kHz; start after 48 frames.
	if _, err := tl.Schedule(constBuffer(0.5, 24), 2*time.Millisecond, func() { ended.Add(1) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	out := read(t, tl, 100)
	for i, s := range out {
		want := int16(0)
		if i >= 48 && i < 72 {
			want = 16384
		}
		if s != want {
			t.Fatalf("frame %d = %d, want %d", i, s, want)
		}
	}
	if ended.Load() != 1 {
		t.Errorf("onEnded fired %d times, want 1", ended.Load())
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", tl.Pending())
	}
}

func TestTimeline_StopSuppressesCallback(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})

	var ended atomic.Int32
	v, err := tl.Schedule(constBuffer(0.25, 100), 0, func() { ended.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	read(t, tl, 10)
	v.Stop()
	v.Stop()

	for i, s := range read(t, tl, 200) {
		if s != 0 {
			t.Fatalf("frame %d = %d after stop, want silence", i, s)
		}
	}
	if ended.Load() != 0 {
		t.Errorf("onEnded fired for stopped voice")
	}
}

func TestTimeline_PastPositionStartsImmediately(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})
	read(t, tl, 240)

	if _, err := tl.Schedule(constBuffer(0.5, 10), 0, nil); err != nil {
		t.Fatal(err)
	}
	if out := read(t, tl, 1); out[0] != 16384 {
		t.Errorf("first frame = %d, want 16384", out[0])
	}
}

func TestTimeline_StereoOutputDuplicatesMono(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 2})
	if _, err := tl.Schedule(constBuffer(-0.5, 4), 0, nil); err != nil {
		t.Fatal(err)
	}
	p := make([]byte, 4*4)
	if _, err := tl.Read(p); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(p); i += 2 {
		if s := int16(binary.LittleEndian.Uint16(p[i:])); s != -16384 {
			t.Fatalf("sample %d = %d, want -16384", i/2, s)
		}
	}
}

func TestTimeline_SampleRateMismatch(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})
	buf := audio.Buffer{Data: [][]float32{make([]float32, 10)}, SampleRate: 16000}
	if _, err := tl.Schedule(buf, 0, nil); !errors.Is(err, playback.ErrSampleRate) {
		t.Errorf("err = %v, want ErrSampleRate", err)
	}
}

func TestTimeline_Close(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Read(make([]byte, 8)); !errors.Is(err, io.EOF) {
		t.Errorf("Read after Close err = %v, want EOF", err)
	}
	if _, err := tl.Schedule(constBuffer(0, 1), 0, nil); !errors.Is(err, playback.ErrClosed) {
		t.Errorf("Schedule after Close err = %v, want ErrClosed", err)
	}
}

// The scheduler driven by a timeline plays consecutive chunks back to back
// and reports completion as the device consumes audio.
func TestTimeline_WithScheduler(t *testing.T) {
	t.Parallel()
	tl := playback.NewTimeline(audio.Format{SampleRate: rate, Channels: 1})
	s := playback.New(tl, tl)

	if _, err := s.Enqueue(constBuffer(0.5, 24)); err != nil {
		t.Fatal(err)
	}
	u, err := s.Enqueue(constBuffer(-0.5, 24))
	if err != nil {
		t.Fatal(err)
	}
	if u.Start != time.Millisecond {
		t.Errorf("second unit start = %v, want 1ms", u.Start)
	}

	out := read(t, tl, 60)
	if out[23] != 16384 || out[24] != -16384 || out[47] != -16384 || out[48] != 0 {
		t.Errorf("unexpected boundary samples: %d %d %d %d", out[23], out[24], out[47], out[48])
	}
	if s.Active() != 0 {
		t.Errorf("Active = %d, want 0 after playback", s.Active())
	}

	// Interrupt mid-chunk silences the remainder.
	if _, err := s.Enqueue(constBuffer(0.5, 480)); err != nil {
		t.Fatal(err)
	}
	read(t, tl, 10)
	if n := s.Interrupt(); n != 1 {
		t.Errorf("Interrupt = %d, want 1", n)
	}
	for i, v := range read(t, tl, 50) {
		if v != 0 {
			t.Fatalf("frame %d = %d after interrupt, want 0", i, v)
		}
	}
}
