// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Transactions tests transaction counting by result
func TestMetrics_Transactions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	esr := "0"
	conn := newScriptedConn(func(cmd string) []string {
		switch cmd {
		case QueryESR:
			return []string{esr}
		case QueryEER:
			return []string{"104"}
		case "V1?":
			return []string{"V1 1.000"}
		}
		return nil
	})
	client := newScriptedClient(t, CPXGrammar(), 1, conn)
	client.metrics = m
	ctx := context.Background()

	if _, err := client.Process(ctx, "V1?"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := client.Execute(ctx, "OP1 1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	esr = "16"
	if err := client.Execute(ctx, "V1 2"); !errors.Is(err, ErrOutputEnabledConflict) {
		t.Fatalf("Execute() error = %v, want ErrOutputEnabledConflict", err)
	}
	if err := client.Execute(ctx, "NOPE"); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("Execute() error = %v, want ErrInvalidCommand", err)
	}

	tests := []struct {
		txType string
		result string
		want   float64
	}{
		{txProcess, "ok", 1},
		{txExecute, "ok", 1},
		{txExecute, "device_error", 1},
		{txExecute, "error", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.Transactions.WithLabelValues(tt.txType, tt.result))
		if got != tt.want {
			t.Errorf("transactions{%s,%s} = %v, want %v", tt.txType, tt.result, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.DeviceErrors.WithLabelValues(KindOutputEnabledConflict.String())); got != 1 {
		t.Errorf("device errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.Duration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

// TestMetrics_Reconnects tests reconnect counting
func TestMetrics_Reconnects(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	broken := newScriptedConn(nil)
	broken.failWrites = 1
	client := newScriptedClient(t, CPXGrammar(), 1, broken)
	client.transport.metrics = m

	_ = client.Execute(context.Background(), "OP1 0") //nolint:errcheck // failure expected

	if got := testutil.ToFloat64(m.Reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReconnectFails); got != 1 {
		t.Errorf("reconnect failures = %v, want 1", got)
	}
}

// TestMetrics_Register tests duplicate registration
func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second NewMetrics() on the same registry should fail")
	}

	var nilMetrics *Metrics
	nilMetrics.observe(txProcess, time.Time{}, nil)
	nilMetrics.reconnectAttempted()
	nilMetrics.reconnectFailed()
}
