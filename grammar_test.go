// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"strings"
	"testing"
)

// TestGrammar_Validate tests acceptance of both families
func TestGrammar_Validate(t *testing.T) {
	tests := []struct {
		cmd  string
		cpx  bool
		pl   bool
		desc string
	}{
		{"V1 3.3", true, true, "set voltage"},
		{"V3 -1.5e2", true, true, "signed exponent"},
		{"V2 .5", true, true, "leading dot"},
		{"V1 12", true, true, "integer value"},
		{"V1V 3.3", true, true, "set voltage with verify"},
		{"V1?", true, true, "query voltage"},
		{"V1O?", true, true, "readback voltage"},
		{"I2O?", true, true, "readback current"},
		{"OVP1 30", true, true, "set OVP"},
		{"DELTAI3?", true, true, "query delta current"},
		{"INCV1V", true, true, "increment with verify"},
		{"OP1 1", true, true, "output on"},
		{"OPALL 0", true, true, "all outputs off"},
		{"SAV1 9", true, true, "save store"},
		{"RCL2 0", true, true, "recall store"},
		{"CONFIG 2", true, true, "tracking mode"},
		{"CONFIG 0", true, true, "independent mode"},
		{"LSE1 4", true, true, "limit event enable"},
		{"*ESR?", true, true, "event status"},
		{"EER?", true, true, "execution error"},
		{"*IDN?", true, true, "identify"},
		{"IFLOCK", true, true, "lock"},
		{"IRANGE1 2", false, true, "current range"},
		{"IRANGE1?", false, true, "query current range"},
		{"DAMPING1 1", false, true, "damping"},
		{"NETCONFIG DHCP", false, true, "net config"},
		{"IPADDR 192.168.1.60", false, true, "set address"},
		{"NETMASK 255.255.255.0", false, true, "set netmask"},
		{"NOLANOK 1", false, true, "LAN error suppression"},

		{"V0 3.3", false, false, "output zero"},
		{"V4 3.3", false, false, "output four"},
		{"V1 abc", false, false, "non-numeric value"},
		{"V1 3.3 4", false, false, "trailing argument"},
		{"V1 3.3\n", false, false, "embedded terminator"},
		{" V1?", false, false, "leading space"},
		{"V1", false, false, "missing argument"},
		{"V1 1e", false, false, "incomplete exponent"},
		{"OP1 2", false, false, "output state out of enumeration"},
		{"SAV1 10", false, false, "store out of range"},
		{"CONFIG 1", false, false, "unsupported mode"},
		{"*LSE1 4", false, false, "star limit event enable"},
		{"IRANGE1 3", false, false, "current range out of enumeration"},
		{"IPADDR 256.1.1.1", false, false, "octet out of range"},
		{"IPADDR 10.0.0", false, false, "short address"},
		{"NETCONFIG dhcp", false, false, "lower case mode"},
		{"", false, false, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := CPXGrammar().Validate(tt.cmd); got != tt.cpx {
				t.Errorf("CPX Validate(%q) = %v, want %v", tt.cmd, got, tt.cpx)
			}
			if got := PLGrammar().Validate(tt.cmd); got != tt.pl {
				t.Errorf("PL Validate(%q) = %v, want %v", tt.cmd, got, tt.pl)
			}
		})
	}
}

// TestGrammar_Match tests pattern selection and submatches
func TestGrammar_Match(t *testing.T) {
	m, ok := PLGrammar().Match("OVP2 31.5")
	if !ok {
		t.Fatal("Match() ok = false")
	}
	if len(m.Groups) != 2 || m.Groups[0] != "2" || m.Groups[1] != "31.5" {
		t.Errorf("Groups = %q, want [2 31.5]", m.Groups)
	}
	if !strings.HasPrefix(m.Pattern, "OVP") {
		t.Errorf("Pattern = %q", m.Pattern)
	}

	if _, ok := PLGrammar().Match("BOGUS"); ok {
		t.Error("Match(BOGUS) ok = true")
	}

	// first full match wins
	g := MustGrammar("test", []string{`V([1-3])\?`, `V.*`})
	m, _ = g.Match("V1?")
	if m.Index != 0 {
		t.Errorf("Index = %d, want 0", m.Index)
	}
	m, _ = g.Match("V1 2")
	if m.Index != 1 {
		t.Errorf("Index = %d, want 1", m.Index)
	}
}

// TestNewGrammar tests grammar construction
func TestNewGrammar(t *testing.T) {
	if _, err := NewGrammar("empty", nil); err == nil {
		t.Error("NewGrammar() with no patterns should fail")
	}
	_, err := NewGrammar("bad", []string{`V1\?`, `V(`})
	if err == nil || !strings.Contains(err.Error(), "pattern 1") {
		t.Errorf("NewGrammar() error = %v, want one naming pattern 1", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustGrammar() should panic on an invalid pattern")
		}
	}()
	MustGrammar("bad", []string{`(`})
}

// TestGrammar_Patterns tests that the grammar is immutable from outside
func TestGrammar_Patterns(t *testing.T) {
	g := CPXGrammar()
	p := g.Patterns()
	p[0] = `.*`
	if g.Validate("ANYTHING") {
		t.Error("modifying Patterns() result changed the grammar")
	}
	if g.Name() != FamilyCPX || PLGrammar().Name() != FamilyPL {
		t.Errorf("names = %q, %q", g.Name(), PLGrammar().Name())
	}
	if len(PLGrammar().Patterns()) <= len(g.Patterns()) {
		t.Error("PL grammar should extend the common set")
	}
}
