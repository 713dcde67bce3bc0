package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Frame is one block of captured audio, delivered by a [Microphone] per
// device callback tick. Frames are ephemeral: the capture pipeline encodes
// them immediately and never retains them.
type Frame struct {
	// Samples holds interleaved float samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for the capture side).
	SampleRate int

	// Channels is the number of interleaved channels in Samples.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Channel returns the samples of channel ch. For mono frames the backing
// slice is returned without copying.
func (f Frame) Channel(ch int) []float32 {
	if f.Channels <= 1 {
		if ch == 0 {
			return f.Samples
		}
		return nil
	}
	if ch < 0 || ch >= f.Channels {
		return nil
	}
	out := make([]float32, 0, len(f.Samples)/f.Channels)
	for i := ch; i < len(f.Samples); i += f.Channels {
		out = append(out, f.Samples[i])
	}
	return out
}

// EncodedChunk is a transport-ready audio payload: base64 text of 16-bit
// little-endian PCM together with its declared format.
type EncodedChunk struct {
	// Data is the base64-encoded PCM payload.
	Data string

	SampleRate int
	Channels   int
}

// MIMEType returns the PCM MIME type understood by realtime model APIs,
// e.g. "audio/pcm;rate=16000".
func (c EncodedChunk) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", c.SampleRate)
}

// Buffer is decoded audio ready for playback: one float slice per channel.
type Buffer struct {
	// Data holds one slice of samples per channel. All slices have equal length.
	Data [][]float32

	SampleRate int
}

// NumChannels returns the number of channels in the buffer.
func (b Buffer) NumChannels() int { return len(b.Data) }

// Len returns the number of sample frames per channel.
func (b Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(b.Len()) * int64(time.Second) / int64(b.SampleRate))
}
