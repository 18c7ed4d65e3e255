package pigpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"
)

// Default timeouts for pigpiod communication.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 2 * time.Second
)

// Config holds pigpiod connection settings.
type Config struct {
	// Address is host:port of pigpiod. Default: localhost:8888.
	Address string

	// ConnectTimeout bounds the dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout bounds one command round trip when ctx has no
	// earlier deadline. Default: 2 seconds.
	RequestTimeout time.Duration
}

// Client is a connection to pigpiod.
type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   net.Conn
	broken error
}

// Connect dials pigpiod.
//
// Returns ErrConnectionRefused when nothing listens at the address so the
// caller can wait and retry, and ErrConnectionFailed for other dial errors.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:8888"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionRefused, cfg.Address, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Address, err)
	}

	return &Client{cfg: cfg, conn: conn}, nil
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if c.broken == nil {
		c.broken = net.ErrClosed
	}
	return err
}

// command sends one frame and waits for its response.
func (c *Client) command(ctx context.Context, cmd Command, p1, p2 uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return 0, fmt.Errorf("%w: %w", ErrChannelLost, c.broken)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// ctx is checked before the exchange; once a frame is out only the
	// request timeout bounds it.
	if err := c.conn.SetDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
		return 0, c.fail(err)
	}

	if _, err := c.conn.Write(encodeRequest(cmd, p1, p2)); err != nil {
		return 0, c.fail(err)
	}

	resp := make([]byte, frameSize)
	if _, err := io.ReadFull(c.conn, resp); err != nil {
		return 0, c.fail(err)
	}

	echoed, res, err := decodeResponse(resp)
	if err != nil {
		return 0, c.fail(err)
	}
	if echoed != cmd {
		return 0, c.fail(fmt.Errorf("response for %s while waiting for %s", echoed, cmd))
	}
	// BR1 answers with an unsigned bitmask.
	if res < 0 && cmd != CmdBR1 {
		return 0, &CommandError{Command: cmd, Code: res}
	}
	return uint32(res), nil //nolint:gosec // reinterpret result word
}

// fail marks the connection unusable. A partial frame leaves the stream
// out of sync, so every I/O error ends the session. Caller holds c.mu.
func (c *Client) fail(err error) error {
	c.broken = err
	return fmt.Errorf("%w: %w", ErrChannelLost, err)
}

// SetMode sets the mode of a GPIO.
func (c *Client) SetMode(ctx context.Context, pin int, mode Mode) error {
	_, err := c.command(ctx, CmdModes, uint32(pin), uint32(mode)) //nolint:gosec // BCM pin numbers are small
	return err
}

// SetPullUpDown sets the pull resistor of a GPIO.
func (c *Client) SetPullUpDown(ctx context.Context, pin int, pull Pull) error {
	_, err := c.command(ctx, CmdPUD, uint32(pin), uint32(pull)) //nolint:gosec // BCM pin numbers are small
	return err
}

// Read returns the level of a GPIO (0 or 1).
func (c *Client) Read(ctx context.Context, pin int) (int, error) {
	res, err := c.command(ctx, CmdRead, uint32(pin), 0) //nolint:gosec // BCM pin numbers are small
	return int(res), err
}

// Write sets the level of a GPIO (0 or 1).
func (c *Client) Write(ctx context.Context, pin int, level int) error {
	if level != 0 {
		level = 1
	}
	_, err := c.command(ctx, CmdWrite, uint32(pin), uint32(level)) //nolint:gosec // BCM pin numbers are small
	return err
}

// SetPWMFrequency sets the PWM frequency in Hz.
func (c *Client) SetPWMFrequency(ctx context.Context, pin int, hz int) error {
	_, err := c.command(ctx, CmdPFS, uint32(pin), uint32(hz)) //nolint:gosec // validated config values
	return err
}

// SetPWMRange sets the dutycycle range (25-40000).
func (c *Client) SetPWMRange(ctx context.Context, pin int, rng int) error {
	_, err := c.command(ctx, CmdPRS, uint32(pin), uint32(rng)) //nolint:gosec // validated config values
	return err
}

// SetPWMDutyCycle sets the PWM dutycycle within the configured range.
func (c *Client) SetPWMDutyCycle(ctx context.Context, pin int, duty int) error {
	_, err := c.command(ctx, CmdPWM, uint32(pin), uint32(duty)) //nolint:gosec // validated config values
	return err
}

// ReadBank1 returns the levels of GPIO 0-31 as a bitmask.
func (c *Client) ReadBank1(ctx context.Context) (uint32, error) {
	return c.command(ctx, CmdBR1, 0, 0)
}

// Levels reads the given pins in one round trip. Pins above 31 are read individually.
func (c *Client) Levels(ctx context.Context, pins []int) ([]int, error) {
	levels := make([]int, len(pins))

	var bank uint32
	needBank := false
	for _, p := range pins {
		if p >= 0 && p < 32 {
			needBank = true
			break
		}
	}
	if needBank {
		var err error
		if bank, err = c.ReadBank1(ctx); err != nil {
			return nil, err
		}
	}

	for i, p := range pins {
		if p >= 0 && p < 32 {
			levels[i] = int(bank>>uint(p)) & 1
			continue
		}
		level, err := c.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		levels[i] = level
	}
	return levels, nil
}
