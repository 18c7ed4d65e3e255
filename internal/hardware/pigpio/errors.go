package pigpio

import (
	"errors"
	"fmt"
)

// Domain errors for the pigpio package.
var (
	// ErrConnectionRefused is returned when pigpiod is not listening.
	ErrConnectionRefused = errors.New("pigpio: connection refused")

	// ErrConnectionFailed is returned for any other dial failure.
	ErrConnectionFailed = errors.New("pigpio: connection failed")

	// ErrChannelLost is returned once the connection broke mid-session.
	// The client is unusable afterwards.
	ErrChannelLost = errors.New("pigpio: channel lost")

	// ErrCommandFailed is returned when pigpiod answers with a negative result.
	ErrCommandFailed = errors.New("pigpio: command failed")
)

// CommandError carries the pigpio error code of a failed command.
type CommandError struct {
	Command Command
	Code    int32
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("pigpio: %s failed: %s (%d)", e.Command, errorText(e.Code), e.Code)
}

// Unwrap lets errors.Is match ErrCommandFailed.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

// errorText names the pigpio error codes the installation can hit.
func errorText(code int32) string {
	switch code {
	case -2:
		return "bad gpio"
	case -3:
		return "bad mode"
	case -4:
		return "bad level"
	case -5:
		return "bad pud"
	case -7:
		return "bad frequency"
	case -8:
		return "bad dutycycle"
	case -41:
		return "not permitted"
	case -92:
		return "bad dutyrange"
	default:
		return "pigpio error"
	}
}
