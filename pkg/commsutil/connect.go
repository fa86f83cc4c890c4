// Package commsutil provides COMMS connection helpers and utilities.
package commsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// Options configures a COMMS connection.
type Options struct {
	URL           string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	return o
}

// Connect creates a COMMS connection to the given URL.
func Connect(url, name string) (*comms.Conn, error) {
	return ConnectWith(Options{URL: url, Name: name})
}

// ConnectWith creates a COMMS connection using opts.
func ConnectWith(opts Options) (*comms.Conn, error) {
	opts = opts.withDefaults()
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, opts.URL, opts.Name))

	nc, err := comms.Connect(opts.URL,
		comms.Name(opts.Name),
		comms.Timeout(opts.Timeout),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(opts.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}

// Request encodes req, sends it on subject and decodes the reply into resp.
// ctx bounds the wait; without a deadline fallback is used.
func Request(ctx context.Context, nc *comms.Conn, subject string, req, resp any, fallback time.Duration) error {
	data, err := EncodePayload(req)
	if err != nil {
		return fmt.Errorf("%s - encode request: %w", logPrefix, err)
	}
	if _, ok := ctx.Deadline(); !ok && fallback > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fallback)
		defer cancel()
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return err
	}
	return DecodePayload(msg.Data, resp)
}

// IsNoResponse reports whether err means nobody answered a request.
func IsNoResponse(err error) bool {
	return errors.Is(err, comms.ErrNoResponders) ||
		errors.Is(err, comms.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
