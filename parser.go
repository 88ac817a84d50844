// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ReplyParser extracts values from query replies.
//
// Reply formats differ between instrument families and sometimes between
// the manual and the firmware, so the facade delegates all parsing to a
// family-specific parser. Every method returns an error of kind
// KindMalformedReply when the reply does not have the expected shape.
type ReplyParser interface {
	// ParseVoltage parses the reply to V<n>?
	ParseVoltage(output int, reply string) (float64, error)

	// ParseCurrentLimit parses the reply to I<n>?
	ParseCurrentLimit(output int, reply string) (float64, error)

	// ParseVoltageReadback parses the reply to V<n>O?
	ParseVoltageReadback(output int, reply string) (float64, error)

	// ParseCurrentReadback parses the reply to I<n>O?
	ParseCurrentReadback(output int, reply string) (float64, error)

	// ParseOVP parses the reply to OVP<n>?
	ParseOVP(output int, reply string) (float64, error)

	// ParseOCP parses the reply to OCP<n>?
	ParseOCP(output int, reply string) (float64, error)

	// ParseDelta parses the reply to DELTAV<n>? and DELTAI<n>?
	ParseDelta(output int, reply string) (float64, error)
}

var replyNumber = regexp.MustCompile(`^[-+]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][-+]?[0-9]+)?$`)

func malformed(what, reply string, cause error) error {
	e := newError(KindMalformedReply, "parse", "", cause)
	e.Message = fmt.Sprintf("malformed %s reply %q", what, reply)
	return e
}

func parseNumber(what, s, reply string) (float64, error) {
	if !replyNumber.MatchString(s) {
		return 0, malformed(what, reply, nil)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, malformed(what, reply, err)
	}
	return v, nil
}

// parseTagged parses "<prefix><n> <value>", e.g. "V1 3.300"
func parseTagged(what, prefix string, output int, reply string) (float64, error) {
	fields := strings.Fields(reply)
	if len(fields) != 2 || fields[0] != prefix+strconv.Itoa(output) {
		return 0, malformed(what, reply, nil)
	}
	return parseNumber(what, fields[1], reply)
}

// parseSecondField parses the value of "<tag> <value>" without checking the tag
func parseSecondField(what, reply string) (float64, error) {
	fields := strings.Fields(reply)
	if len(fields) != 2 {
		return 0, malformed(what, reply, nil)
	}
	return parseNumber(what, fields[1], reply)
}

// parseUnit parses "<value><unit>", e.g. "0.501A"
func parseUnit(what, unit, reply string) (float64, error) {
	s := strings.TrimSpace(reply)
	if !strings.HasSuffix(s, unit) {
		return 0, malformed(what, reply, nil)
	}
	return parseNumber(what, strings.TrimSuffix(s, unit), reply)
}

// CommonParser parses the reply formats documented for the common command
// set: tagged settings ("V1 3.300", "VP1 30.00") and readbacks that are
// either tagged ("I1 0.501") or carry a unit ("0.501A").
type CommonParser struct{}

// ParseVoltage parses "V<n> <volts>"
func (CommonParser) ParseVoltage(output int, reply string) (float64, error) {
	return parseTagged("voltage", "V", output, reply)
}

// ParseCurrentLimit parses "I<n> <amps>"
func (CommonParser) ParseCurrentLimit(output int, reply string) (float64, error) {
	return parseTagged("current limit", "I", output, reply)
}

// ParseVoltageReadback parses "V<n> <volts>" or "<volts>V"
func (p CommonParser) ParseVoltageReadback(output int, reply string) (float64, error) {
	if strings.Contains(strings.TrimSpace(reply), " ") {
		return parseTagged("voltage readback", "V", output, reply)
	}
	return parseUnit("voltage readback", "V", reply)
}

// ParseCurrentReadback parses "I<n> <amps>" or "<amps>A"
func (p CommonParser) ParseCurrentReadback(output int, reply string) (float64, error) {
	if strings.Contains(strings.TrimSpace(reply), " ") {
		return parseTagged("current readback", "I", output, reply)
	}
	return parseUnit("current readback", "A", reply)
}

// ParseOVP parses "VP<n> <volts>"
func (CommonParser) ParseOVP(_ int, reply string) (float64, error) {
	return parseSecondField("OVP", reply)
}

// ParseOCP parses "CP<n> <amps>"
func (CommonParser) ParseOCP(_ int, reply string) (float64, error) {
	return parseSecondField("OCP", reply)
}

// ParseDelta parses "DELTAV<n> <value>" and "DELTAI<n> <value>"
func (CommonParser) ParseDelta(_ int, reply string) (float64, error) {
	return parseSecondField("delta", reply)
}

// PLParser parses the reply formats of the PL family, whose firmware
// deviates from the common documentation: readbacks always carry a unit
// and the protection settings are bare numbers.
type PLParser struct {
	CommonParser
}

// ParseVoltageReadback parses "<volts>V"
func (PLParser) ParseVoltageReadback(_ int, reply string) (float64, error) {
	return parseUnit("voltage readback", "V", reply)
}

// ParseCurrentReadback parses "<amps>A"
func (PLParser) ParseCurrentReadback(_ int, reply string) (float64, error) {
	return parseUnit("current readback", "A", reply)
}

// ParseOVP parses a bare voltage
func (PLParser) ParseOVP(_ int, reply string) (float64, error) {
	return parseNumber("OVP", strings.TrimSpace(reply), reply)
}

// ParseOCP parses a bare current
func (PLParser) ParseOCP(_ int, reply string) (float64, error) {
	return parseNumber("OCP", strings.TrimSpace(reply), reply)
}

func parserFor(g *Grammar) ReplyParser {
	if g != nil && g.Name() == FamilyPL {
		return PLParser{}
	}
	return CommonParser{}
}
