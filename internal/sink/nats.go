package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"firestige.xyz/ferry/internal/core"
)

// NATSOptions configures the nats writer.
type NATSOptions struct {
	URL           string        `mapstructure:"url"`     // required
	Subject       string        `mapstructure:"subject"` // required
	Name          string        `mapstructure:"name"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
}

type natsWriter struct {
	nc   *nats.Conn
	opts NATSOptions
}

func newNATSWriter(options map[string]any) (Writer, error) {
	opts := NATSOptions{
		Name:          "ferry",
		FlushTimeout:  5 * time.Second,
		MaxReconnects: 60,
	}
	if err := decodeOptions("nats", options, &opts); err != nil {
		return nil, err
	}
	if opts.URL == "" || opts.Subject == "" {
		return nil, fmt.Errorf("%w: nats sink requires url and subject", core.ErrConfigInvalid)
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect nats %s: %v", core.ErrSinkWrite, opts.URL, err)
	}
	return &natsWriter{nc: nc, opts: opts}, nil
}

func (n *natsWriter) Name() string { return "nats" }

// Write publishes every message, then waits for the server to acknowledge
// the whole group. Published messages sit in the connection buffer, so a
// failed flush leaves nothing to resend and a retry only flushes again.
func (n *natsWriter) Write(ctx context.Context, msgs [][]byte) error {
	for i, m := range msgs {
		if err := n.nc.Publish(n.opts.Subject, m); err != nil {
			return partial(msgs, i, err)
		}
	}
	timeout := n.opts.FlushTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if err := n.nc.FlushTimeout(timeout); err != nil {
		if len(msgs) == 0 {
			return err
		}
		return &PartialWriteError{Err: err}
	}
	return nil
}

// Close drains pending publishes before closing the connection.
func (n *natsWriter) Close() error {
	return n.nc.Drain()
}
