// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package tti provides a simple API for controlling Aim-TTi CPX and PL
// programmable power supplies over their LAN (or serial) interface.
//
// The instruments speak newline-terminated ASCII commands on TCP port 9221.
// Every operation of the library is one transaction: the command is checked
// against the family's command grammar, sent, its reply (if any) is read and
// the instrument's status registers are queried, so a fault the instrument
// reports comes back as a typed error instead of being silently ignored.
//
// # Quick Start
//
//	ps, err := tti.NewPL(1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ps.Close()
//
//	ctx := context.Background()
//	if err := ps.Connect(ctx, "192.168.1.60"); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := ps.SetVoltage(ctx, 1, 3.3); err != nil {
//	    log.Fatal(err)
//	}
//	if err := ps.EnableOutput(ctx, 1); err != nil {
//	    log.Fatal(err)
//	}
//	volts, err := ps.ReadVoltage(ctx, 1)
//
// # Raw Commands
//
// Commands without a typed method go through Process (queries) and
// Execute (settings). They are still validated and error-checked:
//
//	reply, err := ps.Process(ctx, "LSR1?")
//	err = ps.Execute(ctx, "*SRE 16")
//
// # Error Handling
//
// All errors are *tti.Error values; errors.Is matches the package
// sentinels:
//
//	err := ps.SetVoltage(ctx, 1, 100)
//	switch {
//	case errors.Is(err, tti.ErrRange):
//	    // the instrument rejected the value
//	case errors.Is(err, tti.ErrInvalidChannel):
//	    // output does not exist, nothing was sent
//	case tti.IsRetryable(err):
//	    // the connection dropped and was re-established
//	}
//
// Diagnostics returns the last transaction's command, reply and status
// register values, which is usually all that is needed to understand a
// failure.
//
// # Thread Safety
//
// A Client (and the facades embedding it) is safe for concurrent use.
// Transactions are serialized by a single lock, so a reply is always
// attributed to the command that produced it. A transaction is not
// interruptible once started: with no ReadTimeout configured, an
// instrument that never answers blocks every caller.
package tti
