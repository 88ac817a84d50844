// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import "time"

// Client configuration options using the functional options pattern

// Port sets the default TCP port used by Connect (default: 9221)
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// ConnectTimeout bounds connection establishment (default: 10s)
//
// It only applies to the built-in TCPDialer; a dialer passed with
// WithDialer handles its own timeouts.
func ConnectTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ConnectTimeout = duration
	}
}

// ReadTimeout bounds each reply read (default: 0, wait forever)
//
// The instrument protocol has no way to resynchronize a stream after a late
// reply, so a read that times out closes the connection. Only streams with
// read deadlines (TCP) honor it.
func ReadTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ReadTimeout = duration
	}
}

// WithDialer replaces the TCP dialer, e.g. with a SerialDialer
//
// Example:
//
//	ps, _ := tti.NewPL(1, tti.WithDialer(tti.SerialDialer{BaudRate: 9600}))
//	err := ps.Connect(ctx, "/dev/ttyACM0")
func WithDialer(dialer Dialer) func(*Client) {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithLogger configures a custom logger for the client
//
// By default, the client uses NoOpLogger which discards all log messages.
// At LogLevelDebug every line sent and received is logged.
func WithLogger(logger Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics makes the client record transactions in m
func WithMetrics(m *Metrics) func(*Client) {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithReplyParser overrides the family's reply parser, for firmware whose
// replies differ from the documented formats
func WithReplyParser(p ReplyParser) func(*Client) {
	return func(c *Client) {
		if p != nil {
			c.parser = p
		}
	}
}
