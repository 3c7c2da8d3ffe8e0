// internal/driver/device/errors.go
package device

import (
	"errors"
	"fmt"
)

// ErrNoBackend is returned when the requested driver has no compiled or
// available backend. Construction failures are recoverable: the caller
// checks for a nil handle instead of the process dying.
var ErrNoBackend = errors.New("isn't possible found a GPU")

var (
	// ErrNotConfigured is returned by Open before Configure has run.
	ErrNotConfigured = errors.New("backends not configured")

	// ErrTooManyDevices rejects a device count above MaxMiners.
	ErrTooManyDevices = fmt.Errorf("device count exceeds capacity of %d", MaxMiners)

	// ErrDeviceNotEnabled is returned for a device index outside the
	// configured slots.
	ErrDeviceNotEnabled = errors.New("device index not enabled by configuration")

	// ErrMinerClosed is returned when a closed miner is used again.
	ErrMinerClosed = errors.New("miner is closed")
)

// FatalError marks the class of failures after which a mining process
// cannot make forward progress: backend configuration failure and use of
// a nil or destroyed handle. Library code returns it instead of calling
// os.Exit; the process entry points (and the C boundary) convert it into
// a deliberate exit(1) so a supervisor can restart the miner.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError for operation op.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err belongs to the terminate-the-process tier.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
