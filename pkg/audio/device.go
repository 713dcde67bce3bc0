// Package audio defines the boundary types shared by the capture and playback
// halves of a voice session.
//
// The microphone is consumed through [Microphone]. The speaker side is owned
// by the playback package, which schedules decoded [Buffer] values against a
// monotonic clock. Concrete hardware implementations live in audio/device;
// in-memory doubles live in audio/mock.
package audio

import "context"

// Microphone is a continuous capture source that pushes fixed-size frames.
//
// Frames are delivered on the channel returned by [Microphone.Frames] in
// capture order. The channel is closed when the microphone is stopped.
// Implementations must be safe for concurrent use.
type Microphone interface {
	// Start acquires the capture device and begins delivering frames.
	// Returns an error if the device is unavailable or access is denied.
	Start(ctx context.Context) error

	// Frames returns the read-only frame stream. It is valid after Start.
	Frames() <-chan Frame

	// Stop releases the capture device and closes the frame stream. Calling
	// Stop more than once, or before Start, is safe and returns nil.
	Stop() error

	// Format returns the sample rate and channel count of delivered frames.
	Format() Format
}
