// Package player controls video playback and watches for the end of a scene.
//
// Player is the narrow interface the scene runner needs from a media player.
// MPVClient implements it over mpv's JSON IPC socket:
//
//	mpv --idle=yes --input-ipc-server=/tmp/mpv-socket-1
//
// Requests are newline-delimited JSON objects carrying a request_id; a
// reader goroutine routes replies to their callers and drops asynchronous
// events. Once the socket breaks every pending and future call fails with
// ErrChannelLost and the client must be replaced.
//
// Monitor queues a scene clip between the on and off bumpers and polls the
// player until it goes idle, adapting the poll cadence to the remaining
// playtime.
package player
