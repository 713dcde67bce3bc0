package device

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ playback.Sink  = (*Speaker)(nil)
	_ playback.Clock = (*Speaker)(nil)
)

// DefaultSpeakerBuffer is the oto buffer length. Shorter buffers cut
// interruption latency at the risk of underruns.
const DefaultSpeakerBuffer = 100 * time.Millisecond

// Speaker plays a [playback.Timeline] through the default output device. It
// is both the Sink and the Clock for a [playback.Scheduler]: the clock reports
// how much audio oto has pulled.
//
// oto permits a single context per process, so at most one Speaker may exist.
type Speaker struct {
	*playback.Timeline

	player *oto.Player
}

// NewSpeaker opens the output device at format and starts pulling silence
// from an empty timeline. A bufferSize of zero selects [DefaultSpeakerBuffer].
func NewSpeaker(format audio.Format, bufferSize time.Duration) (*Speaker, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultSpeakerBuffer
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: max(format.Channels, 1),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("device: open speaker: %w", err)
	}
	<-ready

	tl := playback.NewTimeline(format)
	p := ctx.NewPlayer(tl)
	p.Play()
	return &Speaker{Timeline: tl, player: p}, nil
}

// Close stops the player and drops anything still scheduled.
func (s *Speaker) Close() error {
	_ = s.Timeline.Close()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("device: close speaker: %w", err)
	}
	return nil
}
