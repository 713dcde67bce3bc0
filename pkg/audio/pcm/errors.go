package pcm

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode matches every [*DecodeError].
	ErrDecode = errors.New("pcm: malformed base64 payload")

	// ErrFormat matches every [*FormatError].
	ErrFormat = errors.New("pcm: malformed pcm payload")
)

// DecodeError reports base64 text that could not be unwrapped.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pcm: decode base64: %v", e.Err)
}

// Is reports whether target is [ErrDecode].
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func (e *DecodeError) Unwrap() error { return e.Err }

// FormatError reports a PCM byte sequence that does not fit the declared
// format.
type FormatError struct {
	Bytes      int
	SampleRate int
	Channels   int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("pcm: %d bytes is not valid 16-bit pcm for %d channel(s) at %dHz",
		e.Bytes, e.Channels, e.SampleRate)
}

// Is reports whether target is [ErrFormat].
func (e *FormatError) Is(target error) bool { return target == ErrFormat }
