package buddy

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by [Controller.Start] while a session is
	// connecting, active or closing.
	ErrAlreadyActive = errors.New("buddy: session already active")

	// ErrStopped is returned by [Controller.Start] when Stop was called before
	// the connection attempt finished.
	ErrStopped = errors.New("buddy: session stopped during start")

	// ErrAcquisition is matched by every [*AcquisitionError].
	ErrAcquisition = errors.New("buddy: microphone unavailable")

	// ErrConnection is matched by every [*ConnectionError].
	ErrConnection = errors.New("buddy: connection failed")
)

// AcquisitionError reports that the microphone could not be acquired. The
// controller returns to Idle and does not retry.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("buddy: acquire microphone: %v", e.Err)
}

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ConnectionError reports that the live transport could not be opened. The
// controller moves to Errored.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("buddy: open transport: %v", e.Err)
}

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

func (e *ConnectionError) Unwrap() error { return e.Err }
