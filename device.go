// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Mode is the coupling mode of a multi-output instrument
type Mode int

// Coupling modes accepted by CONFIG
const (
	ModeIndependent Mode = 0
	ModeTracking    Mode = 2
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeIndependent:
		return "independent"
	case ModeTracking:
		return "tracking"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// LockStatus is the interface lock state reported by IFLOCK?
type LockStatus int

// Interface lock states
const (
	LockOwned   LockStatus = 1
	LockFree    LockStatus = 0
	LockedOther LockStatus = -1
)

// PowerSupply exposes the command set common to the CPX and PL families as
// typed methods. It embeds the protocol engine, so Connect, Process,
// Execute and Diagnostics are available directly.
//
// Output arguments are checked against the instrument's output count
// before any command is built; an invalid output returns ErrInvalidChannel
// without wire traffic.
type PowerSupply struct {
	*Client
}

// NewCPX creates a facade for a CPX family instrument
//
// Example:
//
//	ps, err := tti.NewCPX(2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ps.Close()
//
//	if err := ps.Connect(ctx, "192.168.1.50"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := ps.SetVoltage(ctx, 1, 3.3); err != nil {
//	    log.Fatal(err)
//	}
func NewCPX(numOutputs int, opts ...func(*Client)) (*PowerSupply, error) {
	client, err := NewClient(CPXGrammar(), numOutputs, opts...)
	if err != nil {
		return nil, err
	}
	return &PowerSupply{Client: client}, nil
}

// NewPowerSupply wraps an existing client in the common facade
func NewPowerSupply(client *Client) *PowerSupply {
	return &PowerSupply{Client: client}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (p *PowerSupply) query(ctx context.Context, cmd string) (string, error) {
	return p.Process(ctx, cmd)
}

func (p *PowerSupply) queryInt(ctx context.Context, cmd string) (int, error) {
	reply, err := p.Process(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		e := malformed("integer", reply, err)
		return 0, withCommand(e, cmd)
	}
	return v, nil
}

func (p *PowerSupply) queryFloat(ctx context.Context, cmd string) (float64, error) {
	reply, err := p.Process(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := parseNumber("numeric", strings.TrimSpace(reply), reply)
	if err != nil {
		return 0, withCommand(err, cmd)
	}
	return v, nil
}

// queryOutput checks output, sends the query built from format and parses
// the reply with parse
func (p *PowerSupply) queryOutput(ctx context.Context, format string, output int,
	parse func(int, string) (float64, error)) (float64, error) {
	n, err := p.CheckOutput(output)
	if err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf(format, n)
	reply, err := p.Process(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := parse(n, reply)
	if err != nil {
		return 0, withCommand(err, cmd)
	}
	return v, nil
}

// executeOutput checks output and executes the command built from format
func (p *PowerSupply) executeOutput(ctx context.Context, format string, output int, args ...any) error {
	n, err := p.CheckOutput(output)
	if err != nil {
		return err
	}
	return p.Execute(ctx, fmt.Sprintf(format, append([]any{n}, args...)...))
}

// Identification

// Identify returns the *IDN? string: manufacturer, model, serial, firmware
func (p *PowerSupply) Identify(ctx context.Context) (string, error) {
	return p.query(ctx, "*IDN?")
}

// Address returns the bus address of the instrument
func (p *PowerSupply) Address(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "ADDRESS?")
}

// Status and interface control

// ClearStatus clears the status structures (*CLS)
func (p *PowerSupply) ClearStatus(ctx context.Context) error {
	return p.Execute(ctx, "*CLS")
}

// Reset restores the instrument defaults (*RST)
func (p *PowerSupply) Reset(ctx context.Context) error {
	return p.Execute(ctx, "*RST")
}

// ClearTrip clears protection trips on all outputs
func (p *PowerSupply) ClearTrip(ctx context.Context) error {
	return p.Execute(ctx, "TRIPRST")
}

// Local returns the instrument to front panel control
func (p *PowerSupply) Local(ctx context.Context) error {
	return p.Execute(ctx, "LOCAL")
}

// Lock requests the interface lock. It reports false when another
// interface holds it.
func (p *PowerSupply) Lock(ctx context.Context) (bool, error) {
	v, err := p.queryInt(ctx, "IFLOCK")
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// LockStatus returns the interface lock state
func (p *PowerSupply) LockStatus(ctx context.Context) (LockStatus, error) {
	v, err := p.queryInt(ctx, "IFLOCK?")
	return LockStatus(v), err
}

// IsLocked reports whether this interface owns the lock
func (p *PowerSupply) IsLocked(ctx context.Context) (bool, error) {
	s, err := p.LockStatus(ctx)
	return s == LockOwned, err
}

// Unlock releases the interface lock. It reports false when the lock was
// not owned by this interface.
func (p *PowerSupply) Unlock(ctx context.Context) (bool, error) {
	v, err := p.queryInt(ctx, "IFUNLOCK")
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

// IST returns the individual status message
func (p *PowerSupply) IST(ctx context.Context) (bool, error) {
	v, err := p.queryInt(ctx, "*IST?")
	return v == 1, err
}

// Registers

// QueryErrorRegister returns and clears the query error register
func (p *PowerSupply) QueryErrorRegister(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "QER?")
}

// StatusByte returns the status byte register
func (p *PowerSupply) StatusByte(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "*STB?")
}

// LimitEventStatus returns and clears the limit event status register of
// output
func (p *PowerSupply) LimitEventStatus(ctx context.Context, output int) (int, error) {
	n, err := p.CheckOutput(output)
	if err != nil {
		return 0, err
	}
	return p.queryInt(ctx, fmt.Sprintf("LSR%d?", n))
}

// ExecutionErrorRegister returns and clears the execution error register.
// Transactions read it on their own when the instrument flags an
// execution error, so it is normally 0.
func (p *PowerSupply) ExecutionErrorRegister(ctx context.Context) (int, error) {
	return p.queryInt(ctx, QueryEER)
}

// SetServiceRequestEnable sets the service request enable register
func (p *PowerSupply) SetServiceRequestEnable(ctx context.Context, value int) error {
	return p.Execute(ctx, fmt.Sprintf("*SRE %d", value))
}

// ServiceRequestEnable returns the service request enable register
func (p *PowerSupply) ServiceRequestEnable(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "*SRE?")
}

// SetParallelPollEnable sets the parallel poll enable register
func (p *PowerSupply) SetParallelPollEnable(ctx context.Context, value int) error {
	return p.Execute(ctx, fmt.Sprintf("*PRE %d", value))
}

// ParallelPollEnable returns the parallel poll enable register
func (p *PowerSupply) ParallelPollEnable(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "*PRE?")
}

// SetEventStatusEnable sets the standard event status enable register
func (p *PowerSupply) SetEventStatusEnable(ctx context.Context, value int) error {
	return p.Execute(ctx, fmt.Sprintf("*ESE %d", value))
}

// EventStatusEnable returns the standard event status enable register
func (p *PowerSupply) EventStatusEnable(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "*ESE?")
}

// SetLimitEventEnable sets the limit event status enable register of output
func (p *PowerSupply) SetLimitEventEnable(ctx context.Context, output, value int) error {
	return p.executeOutput(ctx, "LSE%d %d", output, value)
}

// LimitEventEnable returns the limit event status enable register of output
func (p *PowerSupply) LimitEventEnable(ctx context.Context, output int) (int, error) {
	n, err := p.CheckOutput(output)
	if err != nil {
		return 0, err
	}
	return p.queryInt(ctx, fmt.Sprintf("LSE%d?", n))
}

// Mode

// SetMode sets the coupling mode of the outputs
func (p *PowerSupply) SetMode(ctx context.Context, mode Mode) error {
	return p.Execute(ctx, fmt.Sprintf("CONFIG %d", int(mode)))
}

// Mode returns the coupling mode of the outputs
func (p *PowerSupply) Mode(ctx context.Context) (Mode, error) {
	v, err := p.queryInt(ctx, "CONFIG?")
	return Mode(v), err
}

// Outputs

// EnableOutput switches output on
func (p *PowerSupply) EnableOutput(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "OP%d 1", output)
}

// DisableOutput switches output off
func (p *PowerSupply) DisableOutput(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "OP%d 0", output)
}

// EnableAll switches all outputs on simultaneously
func (p *PowerSupply) EnableAll(ctx context.Context) error {
	return p.Execute(ctx, "OPALL 1")
}

// DisableAll switches all outputs off simultaneously
func (p *PowerSupply) DisableAll(ctx context.Context) error {
	return p.Execute(ctx, "OPALL 0")
}

// IsEnabled reports whether output is on
func (p *PowerSupply) IsEnabled(ctx context.Context, output int) (bool, error) {
	n, err := p.CheckOutput(output)
	if err != nil {
		return false, err
	}
	v, err := p.queryInt(ctx, fmt.Sprintf("OP%d?", n))
	return v == 1, err
}

// Voltage

// SetVoltage programs the output voltage
func (p *PowerSupply) SetVoltage(ctx context.Context, output int, volts float64) error {
	return p.executeOutput(ctx, "V%d %s", output, formatValue(volts))
}

// SetVoltageVerify programs the output voltage and makes the instrument
// verify the output reached it; a verify failure is reported as
// ErrVerifyTimeout
func (p *PowerSupply) SetVoltageVerify(ctx context.Context, output int, volts float64) error {
	return p.executeOutput(ctx, "V%dV %s", output, formatValue(volts))
}

// Voltage returns the programmed output voltage
func (p *PowerSupply) Voltage(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "V%d?", output, p.parser.ParseVoltage)
}

// ReadVoltage returns the measured output voltage
func (p *PowerSupply) ReadVoltage(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "V%dO?", output, p.parser.ParseVoltageReadback)
}

// SetOVP sets the over voltage protection trip point
func (p *PowerSupply) SetOVP(ctx context.Context, output int, volts float64) error {
	return p.executeOutput(ctx, "OVP%d %s", output, formatValue(volts))
}

// OVP returns the over voltage protection trip point
func (p *PowerSupply) OVP(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "OVP%d?", output, p.parser.ParseOVP)
}

// SetDeltaVoltage sets the step size used by IncVoltage and DecVoltage
func (p *PowerSupply) SetDeltaVoltage(ctx context.Context, output int, volts float64) error {
	return p.executeOutput(ctx, "DELTAV%d %s", output, formatValue(volts))
}

// DeltaVoltage returns the voltage step size
func (p *PowerSupply) DeltaVoltage(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "DELTAV%d?", output, p.parser.ParseDelta)
}

// IncVoltage raises the output voltage by the voltage step size
func (p *PowerSupply) IncVoltage(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "INCV%d", output)
}

// IncVoltageVerify is IncVoltage with verify
func (p *PowerSupply) IncVoltageVerify(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "INCV%dV", output)
}

// DecVoltage lowers the output voltage by the voltage step size
func (p *PowerSupply) DecVoltage(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "DECV%d", output)
}

// DecVoltageVerify is DecVoltage with verify
func (p *PowerSupply) DecVoltageVerify(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "DECV%dV", output)
}

// Current

// SetCurrentLimit programs the output current limit
func (p *PowerSupply) SetCurrentLimit(ctx context.Context, output int, amps float64) error {
	return p.executeOutput(ctx, "I%d %s", output, formatValue(amps))
}

// CurrentLimit returns the programmed current limit
func (p *PowerSupply) CurrentLimit(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "I%d?", output, p.parser.ParseCurrentLimit)
}

// ReadCurrent returns the measured output current
func (p *PowerSupply) ReadCurrent(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "I%dO?", output, p.parser.ParseCurrentReadback)
}

// SetOCP sets the over current protection trip point
func (p *PowerSupply) SetOCP(ctx context.Context, output int, amps float64) error {
	return p.executeOutput(ctx, "OCP%d %s", output, formatValue(amps))
}

// OCP returns the over current protection trip point
func (p *PowerSupply) OCP(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "OCP%d?", output, p.parser.ParseOCP)
}

// SetDeltaCurrent sets the step size used by IncCurrent and DecCurrent
func (p *PowerSupply) SetDeltaCurrent(ctx context.Context, output int, amps float64) error {
	return p.executeOutput(ctx, "DELTAI%d %s", output, formatValue(amps))
}

// DeltaCurrent returns the current step size
func (p *PowerSupply) DeltaCurrent(ctx context.Context, output int) (float64, error) {
	return p.queryOutput(ctx, "DELTAI%d?", output, p.parser.ParseDelta)
}

// IncCurrent raises the current limit by the current step size
func (p *PowerSupply) IncCurrent(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "INCI%d", output)
}

// DecCurrent lowers the current limit by the current step size
func (p *PowerSupply) DecCurrent(ctx context.Context, output int) error {
	return p.executeOutput(ctx, "DECI%d", output)
}

// Stores

// Save stores the settings of output in store 0-9
func (p *PowerSupply) Save(ctx context.Context, output, store int) error {
	return p.executeOutput(ctx, "SAV%d %d", output, store)
}

// Recall restores the settings of output from store 0-9. An empty store
// is reported as ErrNoData.
func (p *PowerSupply) Recall(ctx context.Context, output, store int) error {
	return p.executeOutput(ctx, "RCL%d %d", output, store)
}

// SetRatio sets the output 2 to output 1 voltage ratio used in tracking
// mode, in percent
func (p *PowerSupply) SetRatio(ctx context.Context, percent float64) error {
	return p.Execute(ctx, "RATIO "+formatValue(percent))
}

// Ratio returns the tracking ratio in percent
func (p *PowerSupply) Ratio(ctx context.Context) (float64, error) {
	return p.queryFloat(ctx, "RATIO?")
}
