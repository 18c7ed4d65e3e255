package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

// MPVArgs returns the mpv command line for an idle, fullscreen player
// listening on the given IPC socket.
func MPVArgs(cfg config.PlayerConfig, socket string) []string {
	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--fullscreen",
		"--no-terminal",
		"--keep-open=no",
		fmt.Sprintf("--input-ipc-server=%s", socket),
		fmt.Sprintf("--screen=%d", cfg.Screen),
		fmt.Sprintf("--fs-screen=%d", cfg.Screen),
		fmt.Sprintf("--volume=%d", cfg.Volume),
	}
	return append(args, cfg.ExtraArgs...)
}

// mpvReadyTimeout is how long a fresh mpv gets to open its IPC socket.
const mpvReadyTimeout = 15 * time.Second

// NewMPV returns a Manager that runs mpv from the player configuration.
// Start returns once the IPC socket answers. mpv is restarted when it dies
// and killed when the socket stops answering.
func NewMPV(cfg config.PlayerConfig, socket string) *Manager {
	pc := DefaultConfig("mpv", cfg.Binary, MPVArgs(cfg, socket))
	pc.RestartDelay = cfg.RestartDelay
	pc.MaxRestarts = cfg.MaxRestartAttempts
	pc.Watchdog = SocketHealthCheck("unix", socket)
	pc.ReadyTimeout = mpvReadyTimeout
	pc.BeforeStart = func() error { return removeStaleSocket(socket) }
	return NewManager(pc)
}

// removeStaleSocket deletes a socket file left behind by a crashed mpv.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// SocketHealthCheck returns a health check that succeeds when address accepts a connection.
func SocketHealthCheck(network, address string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", address, err)
		}
		return conn.Close()
	}
}
