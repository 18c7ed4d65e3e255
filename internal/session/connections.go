package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/huettenzauber/internal/effect"
	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
	"github.com/nerrad567/huettenzauber/internal/player"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// GPIO is what a session needs from the GPIO daemon. *pigpio.Client implements it.
type GPIO interface {
	effect.GPIO
	trigger.Sensors
	SetPullUpDown(ctx context.Context, pin int, pull pigpio.Pull) error
	Close() error
}

// Connections are the backend handles of one session.
type Connections struct {
	Player player.Player
	GPIO   GPIO
}

// Close closes both connections.
func (c *Connections) Close() error {
	var errs []error
	if c.Player != nil {
		errs = append(errs, c.Player.Close())
	}
	if c.GPIO != nil {
		errs = append(errs, c.GPIO.Close())
	}
	return errors.Join(errs...)
}

// Dialer opens the connections of a session.
type Dialer interface {
	Dial(ctx context.Context) (*Connections, error)
}

// NetDialer dials mpv's IPC socket and pigpiod.
type NetDialer struct {
	cfg *config.Config
}

// NewNetDialer creates a dialer for the configured backends.
func NewNetDialer(cfg *config.Config) *NetDialer {
	return &NetDialer{cfg: cfg}
}

// Dial connects to the player first, then to pigpiod.
func (d *NetDialer) Dial(ctx context.Context) (*Connections, error) {
	p, err := player.DialMPV(ctx, d.cfg.PlayerSocket(), d.cfg.Player.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect player: %w", err)
	}

	gpio, err := pigpio.Connect(ctx, pigpio.Config{
		Address:        d.cfg.PigpiodAddress(),
		ConnectTimeout: d.cfg.Hardware.ConnectTimeout,
		RequestTimeout: d.cfg.Hardware.RequestTimeout,
	})
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("connect pigpiod: %w", err)
	}

	return &Connections{Player: p, GPIO: gpio}, nil
}
