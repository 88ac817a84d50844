// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Diagnostics is the snapshot of the last transaction.
//
// The engine overwrites it at the start of every Process or Execute call
// and fills it in as the transaction progresses, so after a failure it
// shows how far the transaction got.
type Diagnostics struct {
	// LastTransmitted is the command sent by the caller
	LastTransmitted string

	// LastReceived is the raw reply line to the command (queries only)
	LastReceived string

	// LastESR is the Standard Event Status value, NoRegisterValue if not read
	LastESR int

	// LastEER is the execution error code, NoRegisterValue if not read
	LastEER int
}

func emptyDiagnostics() Diagnostics {
	return Diagnostics{LastESR: NoRegisterValue, LastEER: NoRegisterValue}
}

// JSON renders the snapshot as a JSON object. Registers that were not read
// are rendered as null.
//
// Example:
//
//	fmt.Println(ps.Diagnostics().JSON())
//	// {"tx":"V1?","rx":"V1 3.300","esr":0,"eer":null}
func (d Diagnostics) JSON() string {
	doc := `{}`
	doc, _ = sjson.Set(doc, "tx", d.LastTransmitted)
	doc, _ = sjson.Set(doc, "rx", d.LastReceived)
	doc, _ = sjson.Set(doc, "esr", registerJSON(d.LastESR))
	doc, _ = sjson.Set(doc, "eer", registerJSON(d.LastEER))
	return doc
}

// GetValue queries the JSON form of the snapshot with a gjson path
// ("tx", "rx", "esr", "eer").
//
// Example:
//
//	if ps.Diagnostics().GetValue("esr").Int() != 0 { ... }
func (d Diagnostics) GetValue(path string) gjson.Result {
	return gjson.Get(d.JSON(), path)
}

func registerJSON(v int) any {
	if v == NoRegisterValue {
		return nil
	}
	return v
}
