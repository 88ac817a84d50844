// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"fmt"
	"regexp"
)

// Building blocks for command patterns
const (
	// patNum matches a decimal number with optional sign and exponent
	patNum = `([-+]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][-+]?[0-9]+)?)`

	// patOut matches an output index. Both families address at most three
	// outputs; the instrument's real output count is enforced by CheckOutput.
	patOut = `([1-3])`

	patOctet = `(25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)`
	patIPv4  = patOctet + `\.` + patOctet + `\.` + patOctet + `\.` + patOctet
)

// Family names
const (
	FamilyCPX = "CPX"
	FamilyPL  = "PL"
)

// commonPatterns is the command set shared by the CPX and PL families
var commonPatterns = []string{
	`V` + patOut + ` ` + patNum,
	`V` + patOut + `V ` + patNum,
	`OVP` + patOut + ` ` + patNum,
	`I` + patOut + ` ` + patNum,
	`OCP` + patOut + ` ` + patNum,
	`V` + patOut + `\?`,
	`I` + patOut + `\?`,
	`OVP` + patOut + `\?`,
	`OCP` + patOut + `\?`,
	`V` + patOut + `O\?`,
	`I` + patOut + `O\?`,
	`DELTAV` + patOut + ` ` + patNum,
	`DELTAI` + patOut + ` ` + patNum,
	`DELTAV` + patOut + `\?`,
	`DELTAI` + patOut + `\?`,
	`INCV` + patOut,
	`INCV` + patOut + `V`,
	`DECV` + patOut,
	`DECV` + patOut + `V`,
	`INCI` + patOut,
	`DECI` + patOut,
	`OP` + patOut + ` ([01])`,
	`OPALL ([01])`,
	`OP` + patOut + `\?`,
	`TRIPRST`,
	`LSR` + patOut + `\?`,
	`LSE` + patOut + ` ` + patNum,
	`LSE` + patOut + `\?`,
	`SAV` + patOut + ` ([0-9])`,
	`RCL` + patOut + ` ([0-9])`,
	`RATIO ` + patNum,
	`RATIO\?`,
	`CONFIG ([02])`,
	`CONFIG\?`,
	`\*CLS`,
	`EER\?`,
	`\*ESE ` + patNum,
	`\*ESE\?`,
	`\*ESR\?`,
	`\*IST\?`,
	`\*OPC`,
	`\*OPC\?`,
	`\*PRE ` + patNum,
	`\*PRE\?`,
	`QER\?`,
	`\*RST`,
	`\*SRE ` + patNum,
	`\*SRE\?`,
	`\*STB\?`,
	`\*WAI`,
	`LOCAL`,
	`IFLOCK`,
	`IFLOCK\?`,
	`IFUNLOCK`,
	`ADDRESS\?`,
	`\*IDN\?`,
	`\*TST\?`,
	`\*TRG`,
}

// plPatterns are the PL-only extensions: current range selection, damping
// and the LAN configuration commands.
var plPatterns = []string{
	`IRANGE` + patOut + ` ([12])`,
	`IRANGE` + patOut + `\?`,
	`DAMPING` + patOut + ` ([01])`,
	`NOLANOK ([01])`,
	`IPADDR\?`,
	`NETMASK\?`,
	`NETCONFIG\?`,
	`NETCONFIG (DHCP|AUTO|STATIC)`,
	`IPADDR ` + patIPv4,
	`NETMASK ` + patIPv4,
}

// Grammar is an ordered, immutable whitelist of command patterns.
//
// A command is valid when at least one pattern matches it in full; there is
// no prefix matching, so a trailing argument that does not fit the pattern
// makes the whole command invalid. Grammar is safe for concurrent use.
type Grammar struct {
	name     string
	patterns []string
	compiled []*regexp.Regexp
}

// Match describes the pattern that accepted a command
type Match struct {
	// Index of the pattern in the grammar
	Index int

	// Pattern is the source pattern (unanchored)
	Pattern string

	// Groups holds the captured submatches (output index, argument, ...)
	Groups []string
}

// NewGrammar compiles patterns into a Grammar.
//
// Each pattern is anchored at both ends. Returns an error naming the first
// pattern that does not compile.
func NewGrammar(name string, patterns []string) (*Grammar, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("grammar %s: no patterns", name)
	}

	g := &Grammar{
		name:     name,
		patterns: make([]string, len(patterns)),
		compiled: make([]*regexp.Regexp, 0, len(patterns)),
	}
	copy(g.patterns, patterns)

	for i, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, fmt.Errorf("grammar %s: pattern %d (%s): %w", name, i, p, err)
		}
		g.compiled = append(g.compiled, re)
	}

	return g, nil
}

// MustGrammar is like NewGrammar but panics on an invalid pattern
func MustGrammar(name string, patterns []string) *Grammar {
	g, err := NewGrammar(name, patterns)
	if err != nil {
		panic(err)
	}
	return g
}

var (
	cpxGrammar = MustGrammar(FamilyCPX, commonPatterns)
	plGrammar  = MustGrammar(FamilyPL, append(append([]string{}, commonPatterns...), plPatterns...))
)

// CPXGrammar returns the command grammar of the CPX family
func CPXGrammar() *Grammar { return cpxGrammar }

// PLGrammar returns the command grammar of the PL family
func PLGrammar() *Grammar { return plGrammar }

// Name returns the family name of the grammar
func (g *Grammar) Name() string {
	return g.name
}

// Patterns returns a copy of the source patterns
func (g *Grammar) Patterns() []string {
	out := make([]string, len(g.patterns))
	copy(out, g.patterns)
	return out
}

// Validate reports whether cmd is accepted by the grammar. It never fails:
// deciding what to do with a rejected command is up to the caller.
func (g *Grammar) Validate(cmd string) bool {
	_, ok := g.Match(cmd)
	return ok
}

// Match returns the first pattern that matches cmd in full
func (g *Grammar) Match(cmd string) (Match, bool) {
	for i, re := range g.compiled {
		m := re.FindStringSubmatch(cmd)
		if m == nil {
			continue
		}
		return Match{Index: i, Pattern: g.patterns[i], Groups: m[1:]}, true
	}
	return Match{}, false
}
