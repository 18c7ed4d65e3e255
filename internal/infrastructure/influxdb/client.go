package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// Scene events are sparse; small batches keep dashboards current.
	defaultBatchSize     = 20
	defaultFlushInterval = 5 * time.Second
)

// Logger receives asynchronous write failures. *logging.Logger implements it.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Client records scene telemetry in one InfluxDB v2 bucket.
//
// Every point is tagged with the installation so several cabins can share a
// bucket. Writes are batched and never block the caller; failed batches are
// reported to the Logger. Safe for concurrent use.
type Client struct {
	influx       influxdb2.Client
	writes       api.WriteAPI
	installation string
	closed       atomic.Bool
}

// Connect opens the bucket named in cfg after a successful ping.
// logger may be nil.
func Connect(cfg config.InfluxDBConfig, installationID string, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	batch := defaultBatchSize
	if cfg.BatchSize > 0 {
		batch = cfg.BatchSize
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).                   // #nosec G115 -- positive, checked above
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive, checked above
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx:       influx,
		writes:       influx.WriteAPI(cfg.Org, cfg.Bucket),
		installation: installationID,
	}
	go func(failures <-chan error) {
		for err := range failures {
			logger.Error("InfluxDB write failed", "bucket", cfg.Bucket, "error", err)
		}
	}(c.writes.Errors())

	return c, nil
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ok, err := influx.Ping(ctx)
	switch {
	case err != nil:
		return err
	case !ok:
		return errors.New("server not ready")
	}
	return nil
}

// Close sends any buffered points and releases the connection. Writes after
// Close are dropped. Closing a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.influx == nil || c.closed.Swap(true) {
		return nil
	}
	c.writes.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server. It returns ErrNotConnected after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.open() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

func (c *Client) open() bool {
	return c.influx != nil && !c.closed.Load()
}
