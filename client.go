// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default client configuration values
const (
	DefaultPort           = 9221
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 0 // wait forever, as the instrument does not time out replies
	MaxOutputs            = 3
)

// Transaction types, used in logs and metrics
const (
	txProcess = "process"
	txExecute = "execute"
)

// Client is the protocol engine for one instrument connection.
//
// Every Process and Execute call runs a complete transaction (validate,
// send, read, status check) while holding a single lock, so concurrent
// callers never interleave their bytes on the shared stream and every
// reply is attributed to the command that caused it. Client is safe for
// concurrent use.
type Client struct {
	// mu serializes whole transactions and guards the diagnostics snapshot
	mu sync.Mutex

	grammar    *Grammar
	numOutputs int

	// Connection parameters
	Host string
	Port int

	// Timeout configuration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	dialer    Dialer
	transport *Transport
	diag      Diagnostics

	logger  Logger
	metrics *Metrics
	parser  ReplyParser
}

// NewClient creates a protocol engine for an instrument of the family
// described by grammar with numOutputs outputs.
//
// The client is not connected; call Connect before issuing commands.
// Most callers use NewCPX or NewPL, which wrap a Client in the device
// facade.
//
// Example:
//
//	client, err := tti.NewClient(tti.PLGrammar(), 2,
//	    tti.ReadTimeout(2*time.Second),
//	    tti.WithLogger(tti.NewDefaultLogger(tti.LogLevelDebug)),
//	)
//	if err != nil {
//	    log.Fatal(err)  // Configuration error
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx, "192.168.1.50"); err != nil {
//	    log.Fatal(err)  // Connection error
//	}
//	reply, err := client.Process(ctx, "V1?")
//
// Returns a configured Client or an error if configuration validation fails.
func NewClient(grammar *Grammar, numOutputs int, opts ...func(*Client)) (*Client, error) {
	client := &Client{
		grammar:        grammar,
		numOutputs:     numOutputs,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		diag:           emptyDiagnostics(),
		logger:         &NoOpLogger{},
	}

	// Apply functional options
	for _, opt := range opts {
		opt(client)
	}

	if err := client.validateConfig(); err != nil {
		return nil, err
	}

	if client.dialer == nil {
		client.dialer = TCPDialer{Timeout: client.ConnectTimeout}
	}
	if client.parser == nil {
		client.parser = parserFor(grammar)
	}

	client.transport = NewTransport(client.dialer, client.logger)
	client.transport.readTimeout = client.ReadTimeout
	client.transport.metrics = client.metrics
	client.transport.port = client.Port

	client.logger.Debug(context.Background(), "Instrument client created",
		"family", grammar.Name(),
		"outputs", numOutputs,
		"port", client.Port)

	return client, nil
}

// validateConfig validates the client configuration
func (c *Client) validateConfig() error {
	if c.grammar == nil {
		return fmt.Errorf("grammar is required")
	}
	if c.numOutputs < 1 || c.numOutputs > MaxOutputs {
		return fmt.Errorf("invalid number of outputs: %d (must be 1-%d)", c.numOutputs, MaxOutputs)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("invalid connect timeout: %s", c.ConnectTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid read timeout: %s", c.ReadTimeout)
	}
	return nil
}

// Connect opens the connection to the instrument.
//
// host is an IP address or hostname (a device path with SerialDialer). The
// optional port overrides the configured one. Connecting again with an
// empty host reuses the previous host and port, which is how a caller
// recovers after a failed read left the client disconnected.
func (c *Client) Connect(ctx context.Context, host string, port ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := 0
	if len(port) > 0 {
		p = port[0]
		if p < 1 || p > 65535 {
			return fmt.Errorf("invalid port: %d (must be 1-65535)", p)
		}
	}

	if err := c.transport.Connect(ctx, host, p); err != nil {
		return err
	}

	c.Host = c.transport.Host()
	c.Port = c.transport.Port()

	c.logger.Info(ctx, "Instrument connected",
		"family", c.grammar.Name(),
		"host", c.Host,
		"port", c.Port)

	return nil
}

// Disconnect closes the connection but preserves the client configuration.
//
// Calling it on a disconnected client is a no-op. Commands issued after
// Disconnect fail with ErrNotConnected until Connect is called again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.transport.IsConnected() {
		return nil
	}

	err := c.transport.Disconnect()

	c.logger.Info(context.Background(), "Instrument disconnected",
		"host", c.Host,
		"port", c.Port)

	return err
}

// Close disconnects the client; it satisfies io.Closer
func (c *Client) Close() error {
	return c.Disconnect()
}

// IsConnected reports whether the client holds an open stream
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.IsConnected()
}

// Grammar returns the command grammar of the instrument family
func (c *Client) Grammar() *Grammar {
	return c.grammar
}

// NumOutputs returns the number of outputs of the instrument
func (c *Client) NumOutputs() int {
	return c.numOutputs
}

// Parser returns the reply parser of the instrument family
func (c *Client) Parser() ReplyParser {
	return c.parser
}

// Validate reports whether cmd is accepted by the instrument grammar
func (c *Client) Validate(cmd string) bool {
	return c.grammar.Validate(cmd)
}

// Diagnostics returns a copy of the last transaction's snapshot
func (c *Client) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag
}

// CheckOutput verifies that output is a valid output index for this
// instrument and returns it.
func (c *Client) CheckOutput(output int) (int, error) {
	if output < 1 || output > c.numOutputs {
		err := newError(KindInvalidChannel, "check output", "", nil)
		err.Message = fmt.Sprintf("invalid output %d: valid outputs are %s", output, c.outputList())
		return 0, err
	}
	return output, nil
}

// ParseOutput is CheckOutput for textual input (CLI arguments, config).
// Anything that is not a decimal integer is rejected.
func (c *Client) ParseOutput(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		e := newError(KindInvalidChannel, "check output", "", err)
		e.Message = fmt.Sprintf("invalid output %q: valid outputs are %s", s, c.outputList())
		return 0, e
	}
	return c.CheckOutput(n)
}

func (c *Client) outputList() string {
	parts := make([]string, c.numOutputs)
	for i := range parts {
		parts[i] = strconv.Itoa(i + 1)
	}
	return strings.Join(parts, ",")
}

// Process runs a query transaction and returns the instrument's reply line.
//
// The command is validated against the grammar before anything is sent.
// After the reply is read the status registers are checked; a fault
// reported there is returned instead of the reply.
//
// Example:
//
//	reply, err := client.Process(ctx, "V1?")
//	if errors.Is(err, tti.ErrCommand) {
//	    log.Println(client.Diagnostics().JSON())
//	}
func (c *Client) Process(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	reply, err := c.transaction(ctx, txProcess, cmd, true)
	c.metrics.observe(txProcess, start, err)
	return reply, err
}

// Execute runs a command transaction: like Process, but the command
// produces no reply line, so only the status registers are read.
func (c *Client) Execute(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	_, err := c.transaction(ctx, txExecute, cmd, false)
	c.metrics.observe(txExecute, start, err)
	return err
}

// transaction must be called with c.mu held
func (c *Client) transaction(ctx context.Context, op, cmd string, query bool) (string, error) {
	c.diag = emptyDiagnostics()

	c.logger.Debug(ctx, "Starting transaction",
		"operation", op,
		"command", cmd)

	if !c.grammar.Validate(cmd) {
		c.logger.Error(ctx, "Invalid command rejected",
			"family", c.grammar.Name(),
			"command", cmd)
		return "", newError(KindInvalidCommand, op, cmd, nil)
	}

	if err := c.transport.Send(ctx, cmd); err != nil {
		return "", withOp(err, op)
	}
	c.diag.LastTransmitted = cmd

	var reply string
	if query {
		line, err := c.transport.ReadLine(ctx)
		if err != nil {
			return "", withOp(withCommand(err, cmd), op)
		}
		reply = line
		c.diag.LastReceived = line
	}

	if err := c.checkError(ctx, op, cmd); err != nil {
		return "", err
	}

	return reply, nil
}

// checkError reads the status registers and converts a reported fault into
// an *Error. Must be called with c.mu held.
//
// Only the most severe fault is reported: command error, then execution
// error (with its EER code), then verify timeout, then query error.
func (c *Client) checkError(ctx context.Context, op, cmd string) error {
	esr, err := c.readRegister(ctx, op, cmd, QueryESR)
	if err != nil {
		return err
	}
	c.diag.LastESR = esr
	if esr == 0 {
		return nil
	}

	flags := ESR(esr)
	fault := func(kind ErrorKind) error {
		e := newError(kind, op, cmd, nil)
		e.ESR = c.diag.LastESR
		e.EER = c.diag.LastEER
		c.logger.Error(ctx, "Instrument reported an error",
			"command", cmd,
			"esr", flags.String(),
			"eer", c.diag.LastEER,
			"error", kind.String())
		return e
	}

	if flags.Has(ESRCommandError) {
		return fault(KindCommand)
	}

	if flags.Has(ESRExecutionError) {
		eer, err := c.readRegister(ctx, op, cmd, QueryEER)
		if err != nil {
			return err
		}
		c.diag.LastEER = eer
		return fault(ExecutionErrorKind(eer))
	}

	if flags.Has(ESRVerifyTimeout) {
		return fault(KindVerifyTimeout)
	}

	if flags.Has(ESRQueryError) {
		return fault(KindQuery)
	}

	c.logger.Debug(ctx, "Informational status bits set",
		"command", cmd,
		"esr", flags.String())

	return nil
}

// readRegister sends a register query and parses the integer reply
func (c *Client) readRegister(ctx context.Context, op, cmd, query string) (int, error) {
	if err := c.transport.Send(ctx, query); err != nil {
		return 0, withOp(withCommand(err, cmd), op)
	}
	line, err := c.transport.ReadLine(ctx)
	if err != nil {
		return 0, withOp(withCommand(err, cmd), op)
	}
	v, err := parseRegister(line)
	if err != nil {
		e := newError(KindMalformedReply, op, cmd, err)
		e.Message = fmt.Sprintf("unexpected %s reply %q", query, line)
		c.logger.Error(ctx, "Malformed status register reply",
			"query", query,
			"reply", line)
		return 0, e
	}
	return v, nil
}

// withOp stamps the engine operation on a transport error
func withOp(err error, op string) error {
	if e, ok := err.(*Error); ok {
		e.Op = op
	}
	return err
}

// withCommand attributes a transport error to the caller's command
func withCommand(err error, cmd string) error {
	if e, ok := err.(*Error); ok {
		e.Command = cmd
	}
	return err
}
