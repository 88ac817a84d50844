// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package ttisim simulates an Aim-TTi CPX or PL power supply on a TCP port.
//
// The simulated instrument accepts exactly the commands of the family's
// grammar, keeps per-output state and reports faults through the ESR and
// EER registers the way the hardware does, so it can stand in for an
// instrument in tests and demos.
//
// Example:
//
//	sim := ttisim.New(tti.PLGrammar(), 1)
//	if err := sim.Start("127.0.0.1:0"); err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	host, port, _ := net.SplitHostPort(sim.Addr())
package ttisim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	tti "github.com/netascode/go-tti"
)

// Default simulated model limits
const (
	DefaultMaxVolts = 60.0
	DefaultMaxAmps  = 20.0
	DefaultIdentity = "THURLBY THANDAR, SIM, 000000, 1.00-1.00"
	DefaultAddress  = 11
)

// Option configures an Instrument
type Option func(*Instrument)

// WithLogger sets the zerolog logger (default: disabled)
func WithLogger(l zerolog.Logger) Option {
	return func(i *Instrument) {
		i.log = l
	}
}

// WithLimits sets the maximum programmable voltage and current
func WithLimits(maxVolts, maxAmps float64) Option {
	return func(i *Instrument) {
		i.maxVolts = maxVolts
		i.maxAmps = maxAmps
	}
}

// WithIdentity sets the *IDN? reply
func WithIdentity(idn string) Option {
	return func(i *Instrument) {
		i.identity = idn
	}
}

// WithLoad connects a resistive load of ohms to every output, so enabled
// outputs draw current. Zero means open circuit.
func WithLoad(ohms float64) Option {
	return func(i *Instrument) {
		i.loadOhms = ohms
	}
}

type settings struct {
	volts, amps, ovp, ocp float64
}

type output struct {
	settings
	deltaV, deltaI float64
	enabled        bool
	irange         int
	damping        bool
	lse            int
	stores         [10]*settings
}

func newOutput(maxVolts, maxAmps float64) *output {
	return &output{
		settings: settings{ovp: maxVolts * 1.1, ocp: maxAmps * 1.1},
		deltaV:   0.01,
		deltaI:   0.001,
		irange:   int(tti.RangeHigh),
	}
}

// Instrument is a simulated power supply
type Instrument struct {
	grammar    *tti.Grammar
	numOutputs int
	maxVolts   float64
	maxAmps    float64
	identity   string
	loadOhms   float64
	log        zerolog.Logger

	mu       sync.Mutex
	outputs  []*output
	esr      int
	eer      int
	ese      int
	sre      int
	pre      int
	mode     int
	ratio    float64
	locked   bool
	nolanok  int
	netcfg   string
	ipaddr   string
	netmask  string
	received []string
	delay    time.Duration

	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// New creates a simulated instrument of the grammar's family
func New(grammar *tti.Grammar, numOutputs int, opts ...Option) *Instrument {
	i := &Instrument{
		grammar:    grammar,
		numOutputs: numOutputs,
		maxVolts:   DefaultMaxVolts,
		maxAmps:    DefaultMaxAmps,
		identity:   DefaultIdentity,
		log:        zerolog.Nop(),
		ratio:      100,
		netcfg:     string(tti.NetConfigDHCP),
		ipaddr:     "192.168.1.100",
		netmask:    "255.255.255.0",
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.reset()
	return i
}

func (i *Instrument) reset() {
	i.outputs = make([]*output, i.numOutputs)
	for n := range i.outputs {
		i.outputs[n] = newOutput(i.maxVolts, i.maxAmps)
	}
	i.mode = int(tti.ModeIndependent)
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves
// connections in the background
func (i *Instrument) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.listener = ln
	i.mu.Unlock()

	i.log.Info().
		Str("family", i.grammar.Name()).
		Int("outputs", i.numOutputs).
		Str("addr", ln.Addr().String()).
		Msg("Simulator listening")

	i.wg.Add(1)
	go i.acceptLoop(ln)
	return nil
}

// Addr returns the listening address
func (i *Instrument) Addr() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

// Close stops the listener, drops all connections and waits for the
// connection handlers to finish
func (i *Instrument) Close() error {
	i.mu.Lock()
	ln := i.listener
	i.listener = nil
	for c := range i.conns {
		_ = c.Close() //nolint:errcheck // shutting down
	}
	i.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	i.wg.Wait()
	return err
}

// Fault sets status register bits and the execution error code, as if the
// instrument had detected a fault. They are reported by the next status
// query.
func (i *Instrument) Fault(esr, eer int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.esr |= esr
	if eer != 0 {
		i.eer = eer
	}
}

// Received returns every command line received so far
func (i *Instrument) Received() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.received...)
}

// SetDelay delays every reply by d
func (i *Instrument) SetDelay(d time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.delay = d
}

func (i *Instrument) acceptLoop(ln net.Listener) {
	defer i.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				i.log.Error().Err(err).Msg("Accept failed")
			}
			return
		}

		i.mu.Lock()
		i.conns[conn] = struct{}{}
		i.mu.Unlock()

		i.wg.Add(1)
		go i.serve(conn)
	}
}

func (i *Instrument) serve(conn net.Conn) {
	defer i.wg.Done()
	defer func() {
		i.mu.Lock()
		delete(i.conns, conn)
		i.mu.Unlock()
		_ = conn.Close() //nolint:errcheck // connection done
	}()

	remote := conn.RemoteAddr().String()
	i.log.Debug().Str("remote", remote).Msg("Client connected")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		i.mu.Lock()
		delay := i.delay
		i.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		reply, ok := i.Handle(line)
		i.log.Debug().Str("remote", remote).Str("rx", line).Str("tx", reply).Bool("reply", ok).Msg("Command")
		if !ok {
			continue
		}
		if _, err := io.WriteString(conn, reply+"\n"); err != nil {
			i.log.Warn().Err(err).Str("remote", remote).Msg("Write failed")
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		i.log.Warn().Err(err).Str("remote", remote).Msg("Read failed")
	}
	i.log.Debug().Str("remote", remote).Msg("Client disconnected")
}

// Handle executes one command line and returns its reply. The boolean is
// false for commands that produce no reply.
func (i *Instrument) Handle(line string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.received = append(i.received, line)

	if !i.grammar.Validate(line) {
		i.esr |= int(tti.ESRCommandError)
		i.log.Debug().Str("command", line).Msg("Command error")
		return "", false
	}

	c := parseCommand(line)
	if c.output > 0 {
		if c.output > i.numOutputs {
			code := tti.EERRange
			if c.output == 2 {
				code = tti.EERSecondOutputUnavailable
			}
			i.executionError(code)
			return i.noReplyFor(c)
		}
	}

	return i.dispatch(c)
}

// noReplyFor keeps the stream in step when a query fails: the hardware
// still answers queries, with an empty value
func (i *Instrument) noReplyFor(c command) (string, bool) {
	if c.query {
		return "", true
	}
	return "", false
}

func (i *Instrument) executionError(code int) {
	i.esr |= int(tti.ESRExecutionError)
	i.eer = code
}

type command struct {
	name   string
	output int
	suffix string
	query  bool
	arg    string
}

// parseCommand splits a validated command into mnemonic, output digit,
// header suffix ("?", "O?", "V") and argument
func parseCommand(line string) command {
	head, arg, _ := strings.Cut(line, " ")
	c := command{arg: arg, query: strings.HasSuffix(head, "?")}

	idx := strings.IndexAny(head, "0123456789")
	if idx < 0 {
		c.name = strings.TrimSuffix(head, "?")
		return c
	}
	c.name = head[:idx]
	c.output = int(head[idx] - '0')
	c.suffix = head[idx+1:]
	return c
}

func (i *Instrument) pl() bool {
	return i.grammar.Name() == tti.FamilyPL
}

func fmtValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func (i *Instrument) number(c command, lo, hi float64) (float64, bool) {
	v, err := strconv.ParseFloat(c.arg, 64)
	if err != nil || v < lo || v > hi {
		i.executionError(tti.EERRange)
		return 0, false
	}
	return v, true
}

func (i *Instrument) integer(c command, lo, hi int) (int, bool) {
	v, err := strconv.ParseFloat(c.arg, 64)
	if err != nil || v != float64(int(v)) || int(v) < lo || int(v) > hi {
		i.executionError(tti.EERRange)
		return 0, false
	}
	return int(v), true
}

func (i *Instrument) readback(o *output) (volts, amps float64) {
	if !o.enabled {
		return 0, 0
	}
	volts = o.volts
	if i.loadOhms > 0 {
		amps = volts / i.loadOhms
		if amps > o.amps {
			amps = o.amps
			volts = amps * i.loadOhms
		}
	}
	return volts, amps
}

func boolReply(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// dispatch must be called with i.mu held
func (i *Instrument) dispatch(c command) (string, bool) {
	var o *output
	if c.output > 0 {
		o = i.outputs[c.output-1]
	}
	n := strconv.Itoa(c.output)

	switch c.name {
	// Voltage
	case "V":
		switch c.suffix {
		case "?":
			return "V" + n + " " + fmtValue(o.volts), true
		case "O?":
			v, _ := i.readback(o)
			if i.pl() {
				return fmtValue(v) + "V", true
			}
			return "V" + n + " " + fmtValue(v), true
		default:
			if v, ok := i.number(c, 0, i.maxVolts); ok {
				o.volts = v
			}
		}
	case "OVP":
		if c.query {
			if i.pl() {
				return fmtValue(o.ovp), true
			}
			return "VP" + n + " " + fmtValue(o.ovp), true
		}
		if v, ok := i.number(c, 1, i.maxVolts*1.1); ok {
			o.ovp = v
		}
	case "DELTAV":
		if c.query {
			return "DELTAV" + n + " " + fmtValue(o.deltaV), true
		}
		if v, ok := i.number(c, 0, i.maxVolts); ok {
			o.deltaV = v
		}
	case "INCV", "DECV":
		v := o.volts + o.deltaV
		if c.name == "DECV" {
			v = o.volts - o.deltaV
		}
		if v < 0 || v > i.maxVolts {
			i.executionError(tti.EERRange)
			break
		}
		o.volts = v

	// Current
	case "I":
		switch c.suffix {
		case "?":
			return "I" + n + " " + fmtValue(o.amps), true
		case "O?":
			_, a := i.readback(o)
			if i.pl() {
				return fmtValue(a) + "A", true
			}
			return "I" + n + " " + fmtValue(a), true
		default:
			if v, ok := i.number(c, 0, i.maxAmps); ok {
				o.amps = v
			}
		}
	case "OCP":
		if c.query {
			if i.pl() {
				return fmtValue(o.ocp), true
			}
			return "CP" + n + " " + fmtValue(o.ocp), true
		}
		if v, ok := i.number(c, 0.01, i.maxAmps*1.1); ok {
			o.ocp = v
		}
	case "DELTAI":
		if c.query {
			return "DELTAI" + n + " " + fmtValue(o.deltaI), true
		}
		if v, ok := i.number(c, 0, i.maxAmps); ok {
			o.deltaI = v
		}
	case "INCI", "DECI":
		v := o.amps + o.deltaI
		if c.name == "DECI" {
			v = o.amps - o.deltaI
		}
		if v < 0 || v > i.maxAmps {
			i.executionError(tti.EERRange)
			break
		}
		o.amps = v
	case "IRANGE":
		if c.query {
			return strconv.Itoa(o.irange), true
		}
		if o.enabled {
			i.executionError(tti.EEROutputEnabled)
			break
		}
		o.irange, _ = strconv.Atoi(c.arg)

	// Outputs
	case "OP":
		if c.query {
			return boolReply(o.enabled), true
		}
		o.enabled = c.arg == "1"
	case "OPALL":
		for _, out := range i.outputs {
			out.enabled = c.arg == "1"
		}
	case "TRIPRST":
	case "DAMPING":
		o.damping = c.arg == "1"

	// Stores
	case "SAV":
		s, _ := strconv.Atoi(c.arg)
		saved := o.settings
		o.stores[s] = &saved
	case "RCL":
		s, _ := strconv.Atoi(c.arg)
		if o.stores[s] == nil {
			i.executionError(tti.EERNoData)
			break
		}
		if o.enabled {
			i.executionError(tti.EEROutputEnabled)
			break
		}
		o.settings = *o.stores[s]

	// Mode
	case "CONFIG":
		if c.query {
			return strconv.Itoa(i.mode), true
		}
		if i.numOutputs < 2 {
			i.executionError(tti.EERSecondOutputUnavailable)
			break
		}
		i.mode, _ = strconv.Atoi(c.arg)
	case "RATIO":
		if c.query {
			return strconv.Itoa(int(i.ratio)), true
		}
		if v, ok := i.number(c, 0, 100); ok {
			i.ratio = v
		}

	// Status
	case "*ESR":
		v := i.esr
		i.esr = 0
		return strconv.Itoa(v), true
	case "EER":
		v := i.eer
		i.eer = 0
		return strconv.Itoa(v), true
	case "*CLS":
		i.esr, i.eer = 0, 0
	case "*RST":
		i.reset()
	case "*ESE":
		if c.query {
			return strconv.Itoa(i.ese), true
		}
		if v, ok := i.integer(c, 0, 255); ok {
			i.ese = v
		}
	case "*SRE":
		if c.query {
			return strconv.Itoa(i.sre), true
		}
		if v, ok := i.integer(c, 0, 255); ok {
			i.sre = v
		}
	case "*PRE":
		if c.query {
			return strconv.Itoa(i.pre), true
		}
		if v, ok := i.integer(c, 0, 255); ok {
			i.pre = v
		}
	case "LSE":
		if c.query {
			return strconv.Itoa(o.lse), true
		}
		if v, ok := i.integer(c, 0, 255); ok {
			o.lse = v
		}
	case "LSR":
		return "0", true
	case "*STB":
		stb := 0
		if i.esr&i.ese != 0 {
			stb |= 1 << 5
		}
		return strconv.Itoa(stb), true
	case "*IST":
		return "1", true
	case "QER":
		return "0", true
	case "*TST":
		return "0", true
	case "*OPC":
		if c.query {
			return "1", true
		}
		i.esr |= int(tti.ESROperationComplete)
	case "*WAI", "*TRG":

	// Interface
	case "*IDN":
		return i.identity, true
	case "ADDRESS":
		return strconv.Itoa(DefaultAddress), true
	case "LOCAL":
		i.locked = false
	case "IFLOCK":
		if c.query {
			return boolReply(i.locked), true
		}
		i.locked = true
		return "1", true
	case "IFUNLOCK":
		if !i.locked {
			return "-1", true
		}
		i.locked = false
		return "0", true

	// LAN
	case "IPADDR":
		if c.query {
			return i.ipaddr, true
		}
		i.ipaddr = c.arg
	case "NETMASK":
		if c.query {
			return i.netmask, true
		}
		i.netmask = c.arg
	case "NETCONFIG":
		if c.query {
			return i.netcfg, true
		}
		i.netcfg = c.arg
	case "NOLANOK":
		i.nolanok, _ = strconv.Atoi(c.arg)

	default:
		// accepted by the grammar but not simulated
		i.log.Warn().Str("command", c.name).Msg("Command not simulated")
		if c.query {
			return "", true
		}
	}

	return "", false
}

// String describes the simulated instrument
func (i *Instrument) String() string {
	return fmt.Sprintf("%s simulator (%d outputs)", i.grammar.Name(), i.numOutputs)
}
