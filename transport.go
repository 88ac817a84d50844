// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// LineTerminator ends every command written to the wire
const LineTerminator = "\n"

// Transport owns the byte stream to one instrument and frames it as lines.
//
// Transport is not safe for concurrent use; the Client serializes all
// access under its transaction lock.
type Transport struct {
	dialer      Dialer
	logger      Logger
	metrics     *Metrics
	readTimeout time.Duration

	host string
	port int

	conn   io.ReadWriteCloser
	reader *bufio.Reader
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// NewTransport creates an unconnected transport
func NewTransport(dialer Dialer, logger Logger) *Transport {
	if dialer == nil {
		dialer = TCPDialer{}
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Transport{dialer: dialer, logger: logger}
}

// Host returns the stored host
func (t *Transport) Host() string { return t.host }

// Port returns the stored port
func (t *Transport) Port() int { return t.port }

// IsConnected reports whether a stream is open
func (t *Transport) IsConnected() bool { return t.conn != nil }

// Connect opens the stream. An empty host or a zero port reuses the value
// stored by the previous Connect. An already open stream is closed first.
func (t *Transport) Connect(ctx context.Context, host string, port int) error {
	if host != "" {
		t.host = host
	}
	if port != 0 {
		t.port = port
	}
	if t.host == "" {
		return &Error{Kind: KindConnection, Op: "connect", Message: "no host configured",
			ESR: NoRegisterValue, EER: NoRegisterValue}
	}

	if t.conn != nil {
		t.closeStream()
	}

	conn, err := t.dialer.Dial(ctx, t.host, t.port)
	if err != nil {
		t.logger.Error(ctx, "Instrument connection failed",
			"host", t.host,
			"port", t.port,
			"error", err.Error())
		return newError(KindConnection, "connect", "", err)
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)

	t.logger.Debug(ctx, "Instrument stream opened",
		"host", t.host,
		"port", t.port)

	return nil
}

// Disconnect closes the stream. Calling it when already disconnected is a
// no-op.
func (t *Transport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	if err != nil {
		return newError(KindConnection, "disconnect", "", err)
	}
	return nil
}

// closeStream drops the stream, ignoring close errors: it is only used on
// streams already known to be broken.
func (t *Transport) closeStream() {
	if t.conn != nil {
		_ = t.conn.Close() //nolint:errcheck // stream is being discarded
	}
	t.conn = nil
	t.reader = nil
}

// Send writes line followed by LineTerminator.
//
// If the write fails, the stale stream is closed and exactly one reconnect
// to the stored host and port is attempted. The original write error is
// returned either way and the command is not re-sent: the caller decides
// whether to issue it again.
func (t *Transport) Send(ctx context.Context, line string) error {
	if t.conn == nil {
		return newError(KindNotConnected, "send", line, nil)
	}

	t.logger.Debug(ctx, "TX", "line", line)

	if _, err := io.WriteString(t.conn, line+LineTerminator); err != nil {
		t.logger.Warn(ctx, "Instrument write failed, reconnecting",
			"host", t.host,
			"port", t.port,
			"error", err.Error())

		t.closeStream()
		t.metrics.reconnectAttempted()
		if rerr := t.Connect(ctx, "", 0); rerr != nil {
			t.metrics.reconnectFailed()
			t.logger.Error(ctx, "Instrument reconnect failed",
				"host", t.host,
				"port", t.port,
				"error", rerr.Error())
		} else {
			t.logger.Info(ctx, "Instrument reconnected",
				"host", t.host,
				"port", t.port)
		}

		return newError(KindConnection, "send", line, err)
	}

	return nil
}

// ReadLine blocks until a full line is available and returns it without
// its terminator.
//
// No timeout applies unless ReadTimeout was configured and the stream
// supports read deadlines: a silent instrument stalls the caller. A failed
// read leaves the transport disconnected, since the line framing can no
// longer be trusted; Connect with no arguments reopens it.
func (t *Transport) ReadLine(ctx context.Context) (string, error) {
	if t.conn == nil {
		return "", newError(KindNotConnected, "read", "", nil)
	}

	if t.readTimeout > 0 {
		if d, ok := t.conn.(readDeadliner); ok {
			_ = d.SetReadDeadline(time.Now().Add(t.readTimeout)) //nolint:errcheck // best effort
		}
	}

	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			t.logger.Error(ctx, "Instrument read timed out",
				"host", t.host,
				"timeout", t.readTimeout.String())
		} else {
			t.logger.Error(ctx, "Instrument read failed",
				"host", t.host,
				"partial", line,
				"error", err.Error())
		}
		t.closeStream()
		return "", newError(KindConnection, "read", "", err)
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	t.logger.Debug(ctx, "RX", "line", line)

	return line, nil
}
