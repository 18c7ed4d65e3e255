package scene

import "errors"

// Domain errors for the scene package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, scene.ErrMalformedSteps) {
//	    // skip the effect
//	}
var (
	// ErrMalformedSteps is returned when a non-empty timing spec is not
	// exactly three non-negative integers.
	ErrMalformedSteps = errors.New("scene: malformed timing spec")

	// ErrInvalidTable is returned when the scene table fails validation.
	ErrInvalidTable = errors.New("scene: invalid scene table")

	// ErrEmptyTable is returned when the scene table has no rows.
	ErrEmptyTable = errors.New("scene: empty scene table")

	// ErrNoSelectableScene is returned when every weight is zero.
	ErrNoSelectableScene = errors.New("scene: no scene with positive weight")
)
