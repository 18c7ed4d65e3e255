package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	defaultRequestTimeout = 3 * time.Second

	// maxMessageSize bounds one IPC line. Track lists can be long.
	maxMessageSize = 1 << 20

	mpvSuccess             = "success"
	mpvPropertyUnavailable = "property unavailable"
)

// request is one IPC command.
type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// message is anything mpv writes to the socket: a reply or an event.
type message struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
}

// MPVClient talks to a running mpv over its JSON IPC socket.
//
// Thread Safety: all methods are safe for concurrent use.
type MPVClient struct {
	conn    net.Conn
	timeout time.Duration
	nextID  atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan message
	lost    error

	done chan struct{}
}

// DialMPV connects to the mpv IPC socket at path.
//
// Returns ErrConnectionRefused when the socket does not exist or nobody
// listens on it.
func DialMPV(ctx context.Context, path string, requestTimeout time.Duration) (*MPVClient, error) {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionRefused, path, err)
		}
		return nil, fmt.Errorf("player: dial %s: %w", path, err)
	}

	c := &MPVClient{
		conn:    conn,
		timeout: requestTimeout,
		pending: make(map[int64]chan message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop routes replies to waiting callers until the socket closes.
func (c *MPVClient) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event != "" || msg.RequestID == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[*msg.RequestID]
		delete(c.pending, *msg.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}

	cause := scanner.Err()
	if cause == nil {
		cause = io.EOF
	}

	c.mu.Lock()
	c.lost = fmt.Errorf("%w: %w", ErrChannelLost, cause)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// command sends one request and waits for its reply.
func (c *MPVClient) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan message, 1)

	c.mu.Lock()
	if c.lost != nil {
		err := c.lost
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("player: encode %v: %w", args[0], err)
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err = c.conn.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		// A partial write leaves the stream unusable.
		_ = c.conn.Close()
		return nil, fmt.Errorf("%w: write: %w", ErrChannelLost, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.lost
			c.mu.Unlock()
			return nil, err
		}
		return replyData(args[0], msg)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, args[0])
	}
}

func (c *MPVClient) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func replyData(name any, msg message) (json.RawMessage, error) {
	switch msg.Error {
	case mpvSuccess, "":
		return msg.Data, nil
	case mpvPropertyUnavailable:
		return nil, ErrPropertyUnavailable
	default:
		return nil, fmt.Errorf("%w: %v: %s", ErrCommandFailed, name, msg.Error)
	}
}

// Stop halts playback and clears the playlist.
func (c *MPVClient) Stop(ctx context.Context) error {
	_, err := c.command(ctx, "stop")
	return err
}

// Load adds path to the playlist.
func (c *MPVClient) Load(ctx context.Context, path string, mode LoadMode) error {
	_, err := c.command(ctx, "loadfile", path, mode.String())
	return err
}

// IsIdle reports mpv's idle-active property.
func (c *MPVClient) IsIdle(ctx context.Context) (bool, error) {
	data, err := c.command(ctx, "get_property", "idle-active")
	if err != nil {
		return false, err
	}
	var idle bool
	if err := json.Unmarshal(data, &idle); err != nil {
		return false, fmt.Errorf("player: decode idle-active: %w", err)
	}
	return idle, nil
}

// RemainingTime reports mpv's playtime-remaining property.
func (c *MPVClient) RemainingTime(ctx context.Context) (time.Duration, bool, error) {
	data, err := c.command(ctx, "get_property", "playtime-remaining")
	if errors.Is(err, ErrPropertyUnavailable) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var secs *float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return 0, false, fmt.Errorf("player: decode playtime-remaining: %w", err)
	}
	if secs == nil || *secs < 0 {
		return 0, false, nil
	}
	return time.Duration(*secs * float64(time.Second)), true, nil
}

// SetVolume sets mpv's volume property.
func (c *MPVClient) SetVolume(ctx context.Context, volume int) error {
	_, err := c.command(ctx, "set_property", "volume", volume)
	return err
}

// Close closes the socket and waits for the reader to exit.
func (c *MPVClient) Close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ Player = (*MPVClient)(nil)
