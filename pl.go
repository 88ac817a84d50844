// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"context"
	"fmt"
	"strings"
)

// CurrentRange selects the current range of a PL output
type CurrentRange int

// Current ranges accepted by IRANGE
const (
	// RangeLow is the 500 mA or 800 mA range, depending on the model
	RangeLow  CurrentRange = 1
	RangeHigh CurrentRange = 2
)

// String returns the range name
func (r CurrentRange) String() string {
	switch r {
	case RangeLow:
		return "low"
	case RangeHigh:
		return "high"
	default:
		return fmt.Sprintf("range(%d)", int(r))
	}
}

// NetConfigMode is the address assignment mode of the LAN interface
type NetConfigMode string

// LAN address assignment modes
const (
	NetConfigDHCP   NetConfigMode = "DHCP"
	NetConfigAuto   NetConfigMode = "AUTO"
	NetConfigStatic NetConfigMode = "STATIC"
)

// PL is the facade of a PL family instrument: the common command set with
// the PL reply formats, plus current range, damping and LAN configuration.
type PL struct {
	*PowerSupply
}

// NewPL creates a facade for a PL family instrument
//
// Example:
//
//	ps, err := tti.NewPL(1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ps.Connect(ctx, "192.168.1.60"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := ps.SetCurrentRange(ctx, 1, tti.RangeLow); err != nil {
//	    log.Fatal(err)
//	}
func NewPL(numOutputs int, opts ...func(*Client)) (*PL, error) {
	client, err := NewClient(PLGrammar(), numOutputs, opts...)
	if err != nil {
		return nil, err
	}
	return &PL{PowerSupply: &PowerSupply{Client: client}}, nil
}

// SetCurrentRange selects the current range of output. The output must be
// off; otherwise the instrument reports ErrOutputEnabledConflict.
func (p *PL) SetCurrentRange(ctx context.Context, output int, r CurrentRange) error {
	return p.executeOutput(ctx, "IRANGE%d %d", output, int(r))
}

// CurrentRange returns the current range of output
func (p *PL) CurrentRange(ctx context.Context, output int) (CurrentRange, error) {
	n, err := p.CheckOutput(output)
	if err != nil {
		return 0, err
	}
	v, err := p.queryInt(ctx, fmt.Sprintf("IRANGE%d?", n))
	return CurrentRange(v), err
}

// SetDamping switches the meter damping of output
func (p *PL) SetDamping(ctx context.Context, output int, on bool) error {
	return p.executeOutput(ctx, "DAMPING%d %d", output, boolArg(on))
}

// SetLANErrorSuppression stops the LAN status failure from being reported
// as an error on the front panel when suppress is true
func (p *PL) SetLANErrorSuppression(ctx context.Context, suppress bool) error {
	return p.Execute(ctx, fmt.Sprintf("NOLANOK %d", boolArg(suppress)))
}

// IPAddress returns the LAN address
func (p *PL) IPAddress(ctx context.Context) (string, error) {
	reply, err := p.query(ctx, "IPADDR?")
	return strings.TrimSpace(reply), err
}

// Netmask returns the LAN netmask
func (p *PL) Netmask(ctx context.Context) (string, error) {
	reply, err := p.query(ctx, "NETMASK?")
	return strings.TrimSpace(reply), err
}

// NetConfig returns the LAN address assignment mode
func (p *PL) NetConfig(ctx context.Context) (NetConfigMode, error) {
	reply, err := p.query(ctx, "NETCONFIG?")
	return NetConfigMode(strings.TrimSpace(reply)), err
}

// SetNetConfig selects the LAN address assignment mode; it takes effect
// after the instrument's LAN interface restarts
func (p *PL) SetNetConfig(ctx context.Context, mode NetConfigMode) error {
	return p.Execute(ctx, "NETCONFIG "+string(mode))
}

// SetIPAddress sets the static LAN address (dotted quad)
func (p *PL) SetIPAddress(ctx context.Context, addr string) error {
	return p.Execute(ctx, "IPADDR "+addr)
}

// SetNetmask sets the static LAN netmask (dotted quad)
func (p *PL) SetNetmask(ctx context.Context, mask string) error {
	return p.Execute(ctx, "NETMASK "+mask)
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
