package effect

import "errors"

// Domain errors for the effect package.
var (
	// ErrActuation is returned when the hardware rejects a command during a cycle.
	ErrActuation = errors.New("effect: actuation failed")

	// ErrCleanup is returned when Off or Release fails while shutting an effect down.
	ErrCleanup = errors.New("effect: cleanup failed")
)
