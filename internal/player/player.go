package player

import (
	"context"
	"time"
)

// LoadMode selects how a file is added to the playlist.
type LoadMode int

const (
	// LoadReplace stops playback and plays the file now.
	LoadReplace LoadMode = iota
	// LoadAppend appends the file to the playlist.
	LoadAppend
	// LoadAppendPlay appends the file and starts playback if idle.
	LoadAppendPlay
)

func (m LoadMode) String() string {
	switch m {
	case LoadAppend:
		return "append"
	case LoadAppendPlay:
		return "append-play"
	default:
		return "replace"
	}
}

// Player is a media player the scene runner can drive.
type Player interface {
	// Stop halts playback and clears the playlist.
	Stop(ctx context.Context) error

	// Load adds a file to the playlist.
	Load(ctx context.Context, path string, mode LoadMode) error

	// IsIdle reports whether the player has nothing left to play.
	IsIdle(ctx context.Context) (bool, error)

	// RemainingTime returns the playtime left in the current file.
	// known is false when the player cannot tell yet.
	RemainingTime(ctx context.Context) (remaining time.Duration, known bool, err error)

	// SetVolume sets the output volume (0-100).
	SetVolume(ctx context.Context, volume int) error

	// Close releases the connection. The player process keeps running.
	Close() error
}
