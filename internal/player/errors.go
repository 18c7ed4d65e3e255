package player

import "errors"

// Domain errors for the player package.
var (
	// ErrConnectionRefused is returned when no player listens on the socket.
	ErrConnectionRefused = errors.New("player: connection refused")

	// ErrChannelLost is returned once the IPC socket broke.
	ErrChannelLost = errors.New("player: channel lost")

	// ErrPropertyUnavailable is returned when mpv has no value for a property,
	// e.g. playtime while nothing is loaded.
	ErrPropertyUnavailable = errors.New("player: property unavailable")

	// ErrCommandFailed is returned when mpv rejects a command.
	ErrCommandFailed = errors.New("player: command failed")

	// ErrRequestTimeout is returned when mpv does not answer in time.
	ErrRequestTimeout = errors.New("player: request timed out")
)
