// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestTransport_ReconnectOnWriteFailure tests that a failed write closes
// the stream, reconnects exactly once and surfaces the original error
func TestTransport_ReconnectOnWriteFailure(t *testing.T) {
	broken := newScriptedConn(instrumentScript(nil, "0", "0"))
	broken.failWrites = 1
	fresh := newScriptedConn(instrumentScript(map[string]string{"V1?": "V1 5.000"}, "0", "0"))

	client := newScriptedClient(t, CPXGrammar(), 1, broken, fresh)
	ctx := context.Background()

	err := client.Execute(ctx, "V1 5")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Execute() error = %v, want ErrConnection", err)
	}
	if !errors.Is(err, errBrokenPipe) {
		t.Errorf("Execute() error = %v, want the original write error", err)
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false after write failure")
	}

	if !client.IsConnected() {
		t.Fatal("client should be reconnected after a failed write")
	}
	if w := fresh.Writes(); len(w) != 0 {
		t.Errorf("failed command was re-sent on the new stream: %q", w)
	}

	reply, err := client.Process(ctx, "V1?")
	if err != nil {
		t.Fatalf("Process() on new stream error = %v", err)
	}
	if reply != "V1 5.000" {
		t.Errorf("Process() = %q", reply)
	}
}

// TestTransport_ReconnectFailure tests that a failed reconnect leaves the
// transport disconnected
func TestTransport_ReconnectFailure(t *testing.T) {
	broken := newScriptedConn(instrumentScript(nil, "0", "0"))
	broken.failWrites = 1

	var dials atomic.Int32
	dialer := DialerFunc(func(context.Context, string, int) (io.ReadWriteCloser, error) {
		if dials.Add(1) == 1 {
			return broken, nil
		}
		return nil, errors.New("connection refused")
	})

	client, err := NewClient(CPXGrammar(), 1, WithDialer(dialer))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()
	if err := client.Connect(ctx, "192.0.2.10"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err = client.Execute(ctx, "OP1 1")
	if !errors.Is(err, errBrokenPipe) {
		t.Errorf("Execute() error = %v, want the original write error", err)
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d, want exactly one reconnect attempt", got)
	}
	if client.IsConnected() {
		t.Error("client should be disconnected after a failed reconnect")
	}
	if err := client.Execute(ctx, "OP1 1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Execute() error = %v, want ErrNotConnected", err)
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d, NotConnected must not reconnect", got)
	}
}

// TestTransport_ReadFailureCloses tests that a read error closes the stream
func TestTransport_ReadFailureCloses(t *testing.T) {
	conn := newScriptedConn(func(cmd string) []string { return nil })
	client := newScriptedClient(t, CPXGrammar(), 1, conn)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = conn.Close() //nolint:errcheck // test
	}()

	_, err := client.Process(context.Background(), "V1?")
	if !errors.Is(err, ErrConnection) || !errors.Is(err, io.EOF) {
		t.Errorf("Process() error = %v, want ErrConnection wrapping io.EOF", err)
	}
	if client.IsConnected() {
		t.Error("client should be disconnected after a failed read")
	}
	if d := client.Diagnostics(); d.LastTransmitted != "V1?" {
		t.Errorf("LastTransmitted = %q", d.LastTransmitted)
	}
}

// TestTransport_ReadLine tests line terminator handling
func TestTransport_ReadLine(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want string
	}{
		{name: "newline", wire: "V1 3.300\n", want: "V1 3.300"},
		{name: "carriage return newline", wire: "3.300V\r\n", want: "3.300V"},
		{name: "empty line", wire: "\n", want: ""},
		{name: "inner spaces kept", wire: " 0.501A \n", want: " 0.501A "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()

			tr := NewTransport(DialerFunc(func(context.Context, string, int) (io.ReadWriteCloser, error) {
				return client, nil
			}), nil)
			if err := tr.Connect(context.Background(), "pipe", 1); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer tr.Disconnect() //nolint:errcheck // test

			go func() {
				_, _ = io.WriteString(server, tt.wire) //nolint:errcheck // test
			}()

			got, err := tr.ReadLine(context.Background())
			if err != nil {
				t.Fatalf("ReadLine() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestTransport_SendFraming tests that commands are newline terminated
func TestTransport_SendFraming(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	tr := NewTransport(DialerFunc(func(context.Context, string, int) (io.ReadWriteCloser, error) {
		return client, nil
	}), nil)
	if err := tr.Connect(context.Background(), "pipe", 1); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Disconnect() //nolint:errcheck // test

	done := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(server).ReadString('\n') //nolint:errcheck // checked below
		done <- line
	}()

	if err := tr.Send(context.Background(), "OPALL 1"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := <-done; got != "OPALL 1\n" {
		t.Errorf("wire = %q, want %q", got, "OPALL 1\n")
	}
}

// TestTransport_ConnectReusesHostPort tests argument-less reconnects
func TestTransport_ConnectReusesHostPort(t *testing.T) {
	type target struct {
		host string
		port int
	}
	var seen []target
	tr := NewTransport(DialerFunc(func(_ context.Context, host string, port int) (io.ReadWriteCloser, error) {
		seen = append(seen, target{host, port})
		return newScriptedConn(nil), nil
	}), nil)
	ctx := context.Background()

	if err := tr.Connect(ctx, "", 0); !errors.Is(err, ErrConnection) {
		t.Errorf("Connect() without host error = %v, want ErrConnection", err)
	}
	if err := tr.Connect(ctx, "10.0.0.5", 9221); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := tr.Connect(ctx, "", 0); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if err := tr.Connect(ctx, "10.0.0.6", 0); err != nil {
		t.Fatalf("Connect() new host error = %v", err)
	}

	want := []target{{"10.0.0.5", 9221}, {"10.0.0.5", 9221}, {"10.0.0.6", 9221}}
	if len(seen) != len(want) {
		t.Fatalf("dials = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("dial %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

// TestClient_ReadTimeout tests the optional reply deadline
func TestClient_ReadTimeout(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	// drain the command so the write completes, never reply
	go func() {
		_, _ = io.Copy(io.Discard, server) //nolint:errcheck // test
	}()

	client, err := NewClient(PLGrammar(), 1,
		ReadTimeout(50*time.Millisecond),
		WithDialer(DialerFunc(func(context.Context, string, int) (io.ReadWriteCloser, error) {
			return conn, nil
		})))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if err := client.Connect(context.Background(), "pipe"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	start := time.Now()
	_, err = client.Process(context.Background(), "*IDN?")
	if !errors.Is(err, ErrConnection) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("Process() error = %v, want ErrConnection wrapping a deadline error", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Process() took %v, read timeout not applied", elapsed)
	}
	if client.IsConnected() {
		t.Error("client should be disconnected after a read timeout")
	}
}
