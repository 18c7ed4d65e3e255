// Package lighting sends commands to a WLED controller.
//
// A WLED command is the query part of its HTTP API, e.g. "/win&PL=3". The
// client issues GET <wled_url><command> and only checks the status code.
package lighting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

const (
	defaultTimeout     = 3 * time.Second
	defaultDialTimeout = 2 * time.Second
)

// ErrRequestFailed is returned when WLED is unreachable or answers with an error status.
var ErrRequestFailed = errors.New("lighting: request failed")

// Controller changes the ambient lighting.
type Controller interface {
	// Send issues a scene lighting command.
	Send(ctx context.Context, command string) error
	// Idle restores the idle lighting.
	Idle(ctx context.Context) error
}

// WLED is a Controller for a WLED HTTP endpoint.
type WLED struct {
	baseURL     string
	idleCommand string
	http        *http.Client
}

// New returns the configured lighting controller, or Nop when lighting is disabled.
func New(cfg config.LightingConfig) Controller {
	if !cfg.Enabled || cfg.WLEDURL == "" {
		return Nop{}
	}
	return NewWLED(cfg)
}

// NewWLED creates a WLED client.
func NewWLED(cfg config.LightingConfig) *WLED {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WLED{
		baseURL:     cfg.WLEDURL,
		idleCommand: cfg.OffCommand,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: min(timeout, defaultDialTimeout)}).DialContext,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send issues GET baseURL+command.
func (w *WLED) Send(ctx context.Context, command string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+command, nil)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrRequestFailed, command, err)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrRequestFailed, command, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %q: status %d", ErrRequestFailed, command, resp.StatusCode)
	}
	return nil
}

// Idle issues the configured idle command. No-op when none is configured.
func (w *WLED) Idle(ctx context.Context) error {
	if w.idleCommand == "" {
		return nil
	}
	return w.Send(ctx, w.idleCommand)
}

// Nop is a Controller that does nothing.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }
func (Nop) Idle(context.Context) error         { return nil }
