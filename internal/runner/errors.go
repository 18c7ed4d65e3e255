package runner

import (
	"errors"
	"fmt"

	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/player"
)

// Domain errors for the runner package.
var (
	// ErrPlaybackChannelLost is returned when the player connection broke.
	ErrPlaybackChannelLost = errors.New("runner: playback channel lost")

	// ErrHardwareChannelLost is returned when an effect failed because the
	// GPIO connection broke. The scene itself may have played to the end.
	ErrHardwareChannelLost = errors.New("runner: hardware channel lost")

	// ErrEffectFailure matches every *EffectFailure.
	ErrEffectFailure = errors.New("runner: effect failed")

	// ErrConfigMalformed is returned when an effect timing could not
	// be parsed. The effect was skipped; the scene itself played.
	ErrConfigMalformed = errors.New("runner: malformed effect config")
)

// EffectFailure reports one failed effect.
type EffectFailure struct {
	Effect string
	Err    error
}

func (e *EffectFailure) Error() string {
	return fmt.Sprintf("runner: effect %s failed: %v", e.Effect, e.Err)
}

func (e *EffectFailure) Unwrap() error {
	return e.Err
}

// Is matches ErrEffectFailure.
func (e *EffectFailure) Is(target error) bool {
	return target == ErrEffectFailure
}

// ConnectionLost reports whether err means the session's connections are
// gone and the caller must reconnect before playing another scene.
// Raw player and pigpio errors are recognised too, so callers that bypass
// Run classify the same way.
func ConnectionLost(err error) bool {
	return errors.Is(err, ErrPlaybackChannelLost) ||
		errors.Is(err, ErrHardwareChannelLost) ||
		errors.Is(err, player.ErrChannelLost) ||
		errors.Is(err, player.ErrRequestTimeout) ||
		errors.Is(err, pigpio.ErrChannelLost)
}
