// Package live defines the boundary to a realtime conversational model: a
// bidirectional session that accepts a stream of encoded microphone audio and
// answers with streamed synthesized speech, transcripts and control signals.
//
// Inbound traffic is delivered as a single ordered stream of [Event] values.
// Event is a closed union; consumers switch on the concrete type:
//
//	for ev := range conn.Events() {
//	    switch ev := ev.(type) {
//	    case live.EventAudio:
//	        ...
//	    case live.EventInterrupted:
//	        ...
//	    }
//	}
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
)

// ErrClosed is returned by [Conn.SendRealtimeInput] after the connection has
// been closed locally or by the remote side.
var ErrClosed = errors.New("live: connection closed")

// Config is the initial configuration of a live session.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Voice is the prebuilt voice name used for synthesized speech.
	Voice string

	// Instructions is the system instruction that shapes the persona.
	Instructions string

	// Transcribe requests transcripts of both the user's speech and the
	// model's spoken output.
	Transcribe bool
}

// Conn is one open live session. Callers must call Close when done.
type Conn interface {
	// SendRealtimeInput transmits one encoded microphone chunk. Chunks are
	// delivered in call order.
	SendRealtimeInput(ctx context.Context, chunk audio.EncodedChunk) error

	// Events returns the inbound event stream. The channel is closed after the
	// final event; a remote close or fatal error is always reported as an
	// event before the channel closes, a local Close is not.
	Events() <-chan Event

	// Close terminates the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider opens live sessions against one backend.
type Provider interface {
	// Connect dials the backend and sends the session setup. The returned
	// Conn emits [EventOpen] once the backend has accepted the setup.
	Connect(ctx context.Context, cfg Config) (Conn, error)
}

// ── Events ────────────────────────────────────────────────────────────────────

// Event is a single inbound message from the model. The concrete type is one
// of EventOpen, EventAudio, EventTranscript, EventInterrupted, EventError or
// EventClose.
type Event interface {
	isEvent()
}

// EventOpen reports that the backend accepted the session and is listening.
type EventOpen struct{}

// EventAudio carries one chunk of synthesized speech.
type EventAudio struct {
	// Data is base64 text of 16-bit little-endian PCM.
	Data string

	SampleRate int
	Channels   int
}

// Role identifies who spoke a transcript line.
type Role string

const (
	RoleSelf   Role = "self"
	RoleRemote Role = "remote"
)

// EventTranscript carries recognized text for the user or the model.
type EventTranscript struct {
	Role Role
	Text string
}

// EventInterrupted reports that the model stopped speaking because the user
// barged in. Audio already delivered must be discarded.
type EventInterrupted struct{}

// EventError reports a fatal session error. It is followed only by the
// closing of the event channel.
type EventError struct {
	Err error
}

// EventClose reports that the remote side ended the session.
type EventClose struct {
	Reason string
}

func (EventOpen) isEvent()        {}
func (EventAudio) isEvent()       {}
func (EventTranscript) isEvent()  {}
func (EventInterrupted) isEvent() {}
func (EventError) isEvent()       {}
func (EventClose) isEvent()       {}

func (e EventAudio) String() string {
	return fmt.Sprintf("audio(%d bytes b64, %dHz)", len(e.Data), e.SampleRate)
}

func (e EventTranscript) String() string { return fmt.Sprintf("transcript(%s: %q)", e.Role, e.Text) }

func (e EventError) String() string { return fmt.Sprintf("error(%v)", e.Err) }

func (e EventClose) String() string { return fmt.Sprintf("close(%s)", e.Reason) }
