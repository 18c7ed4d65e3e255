// Package process supervises the mpv child process when the controller
// manages the player itself.
//
// Features:
//   - Start/stop with SIGTERM then SIGKILL on the whole process group
//   - Automatic restart on failure with exponential backoff
//   - Restart counter reset once a run has been stable
//   - Start waits until the player's IPC socket answers
//   - Watchdog on the IPC socket, stale sockets removed before each launch
//   - Child stdout/stderr logged line by line
//
// Example usage:
//
//	mgr := process.NewMPV(cfg.Player, cfg.PlayerSocket())
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
