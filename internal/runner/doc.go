// Package runner plays one scene: it starts the clip, runs the scene's
// effects concurrently, waits for playback to end and returns every
// actuator to its safe state.
//
// Each Run owns an explicit session holding the handles of the effects it
// spawned. Its finalizer runs on every exit path: it cancels every handle,
// then waits for every handle's cleanup to finish, then aggregates their
// errors. When Run returns no effect goroutine is left and every actuator
// has been switched Off.
//
// Errors returned by Run can be classified with errors.Is:
//
//	ErrPlaybackChannelLost  the player connection broke; reconnect
//	ErrEffectFailure        an effect failed (see *EffectFailure)
//	ErrConfigMalformed      an effect was skipped; the scene still played
//	context.Canceled        the scene was interrupted
package runner
