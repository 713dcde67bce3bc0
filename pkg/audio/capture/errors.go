package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrTransmission matches every [*TransmissionError].
	ErrTransmission = errors.New("capture: transmission failed")

	// ErrQueueFull is the cause of a TransmissionError for a frame that was
	// dropped because the send queue had no room.
	ErrQueueFull = errors.New("capture: send queue full")
)

// TransmissionError reports one chunk that never reached the transport.
// Capture keeps running after it; the chunk is not retried.
type TransmissionError struct {
	// Seq is the 1-based capture sequence number of the chunk.
	Seq uint64
	Err error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("capture: chunk %d not sent: %v", e.Seq, e.Err)
}

func (e *TransmissionError) Is(target error) bool { return target == ErrTransmission }

func (e *TransmissionError) Unwrap() error { return e.Err }
