// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"strconv"
	"strings"
)

// Status register queries sent by the error check
const (
	QueryESR = "*ESR?"
	QueryEER = "EER?"
)

// NoRegisterValue marks a status register that was not read
const NoRegisterValue = -1

// ESR is the value of the Standard Event Status Register
type ESR uint8

// Standard Event Status Register bits
const (
	ESROperationComplete ESR = 1 << 0
	ESRQueryError        ESR = 1 << 2
	ESRVerifyTimeout     ESR = 1 << 3
	ESRExecutionError    ESR = 1 << 4
	ESRCommandError      ESR = 1 << 5
	ESRPowerOn           ESR = 1 << 7
)

var esrNames = []struct {
	bit  ESR
	name string
}{
	{ESRPowerOn, "PON"},
	{ESRCommandError, "CME"},
	{ESRExecutionError, "EXE"},
	{ESRVerifyTimeout, "VTO"},
	{ESRQueryError, "QYE"},
	{ESROperationComplete, "OPC"},
}

// Has reports whether all bits of flag are set
func (e ESR) Has(flag ESR) bool {
	return e&flag == flag
}

// String lists the set flags, most significant first, e.g. "CME|EXE"
func (e ESR) String() string {
	if e == 0 {
		return "0"
	}
	var parts []string
	known := ESR(0)
	for _, n := range esrNames {
		known |= n.bit
		if e.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if rest := e &^ known; rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// Execution error codes reported by EER?
const (
	EERNone                    = 0
	EERHardwareMin             = 1
	EERHardwareMax             = 9
	EERRange                   = 100
	EERDataCorruption          = 101
	EERNoData                  = 102
	EERSecondOutputUnavailable = 103
	EEROutputEnabled           = 104
	EERReadOnly                = 200
)

// ExecutionErrorKind maps an execution error code to its ErrorKind.
// Codes without a dedicated kind map to KindExecution.
func ExecutionErrorKind(code int) ErrorKind {
	switch {
	case code >= EERHardwareMin && code <= EERHardwareMax:
		return KindHardware
	case code == EERRange:
		return KindRange
	case code == EERDataCorruption:
		return KindDataCorruption
	case code == EERNoData:
		return KindNoData
	case code == EERSecondOutputUnavailable:
		return KindSecondOutputUnavailable
	case code == EEROutputEnabled:
		return KindOutputEnabledConflict
	case code == EERReadOnly:
		return KindReadOnlyViolation
	default:
		return KindExecution
	}
}

// parseRegister parses an integer register reply
func parseRegister(reply string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(reply))
}
