// Package session keeps the controller connected to its backends.
//
// Supervisor.Run loops over sessions. Each session dials the player and the
// GPIO daemon, performs the idempotent setup (volume, button inputs, idle
// lighting) and then runs the configured mode until it ends or a
// connection breaks. Connections are closed at the end of every session.
//
// Retry policy:
//   - a backend refusing connections at setup is retried every
//     RefusedBackoff, without limit (the player may simply not be up yet)
//   - a connection lost mid-session is retried after ReconnectBackoff up to
//     MaxReconnectAttempts times; one more loss returns ErrRetriesExhausted
//
// By default the reconnect counter accumulates for the process lifetime.
// With ResetRetriesOnSuccess it restarts at zero after every successful setup.
package session
