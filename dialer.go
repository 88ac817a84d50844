// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Dialer opens the duplex byte stream to an instrument
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, host string, port int) (io.ReadWriteCloser, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	return f(ctx, host, port)
}

// TCPDialer connects to the instrument's LAN interface. It is the default.
type TCPDialer struct {
	// Timeout bounds connection establishment; zero means no timeout
	// beyond the context's
	Timeout time.Duration
}

// Dial opens a TCP connection to host:port
func (d TCPDialer) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DefaultBaudRate is the factory setting of the RS232 interface
const DefaultBaudRate = 9600

// SerialDialer connects through the RS232 or USB virtual COM port.
//
// The host argument of Dial is the device path (/dev/ttyUSB0, COM3); the
// port argument is ignored. Serial streams do not support read deadlines,
// so the ReadTimeout option has no effect on them.
type SerialDialer struct {
	// BaudRate defaults to DefaultBaudRate
	BaudRate int
}

// Dial opens the serial device named by host
func (d SerialDialer) Dial(_ context.Context, host string, _ int) (io.ReadWriteCloser, error) {
	baud := d.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	port, err := serial.Open(host, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", host, err)
	}
	return port, nil
}
