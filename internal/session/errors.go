package session

import (
	"errors"

	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/player"
	"github.com/nerrad567/huettenzauber/internal/runner"
)

// ErrRetriesExhausted is returned when the connection was lost more often
// than the reconnect budget allows.
var ErrRetriesExhausted = errors.New("session: reconnect attempts exhausted")

// isRefused reports whether a backend could not be reached at dial time:
// it is not listening yet, or the dial itself failed. Neither counts
// against the reconnect budget.
func isRefused(err error) bool {
	return errors.Is(err, player.ErrConnectionRefused) ||
		errors.Is(err, pigpio.ErrConnectionRefused) ||
		errors.Is(err, pigpio.ErrConnectionFailed)
}

// isChannelLoss reports whether err means an established connection broke
// or stopped answering.
func isChannelLoss(err error) bool {
	return runner.ConnectionLost(err)
}
