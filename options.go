package lfdeque

import (
	"io"
	"log/slog"
)

type options struct {
	fixed  bool
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures an LFQueue.
type Option func(*options)

// WithFixedCapacity disables growth: Push returns false once the ring is full.
// The limit is the ring size, i.e. the requested capacity rounded up to a
// power of two (a request for 3 holds 4 values).
func WithFixedCapacity() Option {
	return func(o *options) {
		o.fixed = true
	}
}

// WithLogger sets the logger used for growth and invariant violations.
// A nil logger keeps the default, which discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
