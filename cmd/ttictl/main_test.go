// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	tti "github.com/netascode/go-tti"
	"github.com/netascode/go-tti/internal/config"
	"github.com/netascode/go-tti/ttisim"
)

func startSim(t *testing.T, g *tti.Grammar, outputs int, opts ...ttisim.Option) (*ttisim.Instrument, []string) {
	t.Helper()
	t.Setenv(config.EnvHost, "")
	t.Setenv(config.EnvPort, "")
	t.Setenv(config.EnvLogLevel, "")

	sim := ttisim.New(g, outputs, opts...)
	if err := sim.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = sim.Close() }) //nolint:errcheck // test cleanup

	host, port, err := net.SplitHostPort(sim.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	return sim, []string{"-host", host, "-port", port}
}

func runCmd(t *testing.T, base []string, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append(append([]string{}, base...), args...),
		strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

// TestRun_Commands tests the device commands against a simulator
func TestRun_Commands(t *testing.T) {
	_, base := startSim(t, tti.CPXGrammar(), 2, ttisim.WithLoad(10))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"idn", []string{"idn"}, ttisim.DefaultIdentity + "\n"},
		{"set", []string{"-outputs", "2", "set", "1", "5", "1"}, ""},
		{"on", []string{"-outputs", "2", "on", "1"}, ""},
		{"get", []string{"-outputs", "2", "get", "1"}, "output 1: on, set 5.000 V 1.000 A, measured 5.000 V 0.500 A\n"},
		{"get other output", []string{"-outputs", "2", "get", "2"}, "output 2: off, set 0.000 V 0.000 A, measured 0.000 V 0.000 A\n"},
		{"all off", []string{"-outputs", "2", "off", "all"}, ""},
		{"get after off", []string{"-outputs", "2", "get", "1"}, "output 1: off, set 5.000 V 1.000 A, measured 0.000 V 0.000 A\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runCmd(t, base, "", tt.args...)
			if err != nil {
				t.Fatalf("run(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("run(%v) output = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

// TestRun_Raw tests replies, diagnostics and device errors
func TestRun_Raw(t *testing.T) {
	sim, base := startSim(t, tti.CPXGrammar(), 1)

	got, err := runCmd(t, base, "", "raw", "V1 3.3", "V1?")
	if err != nil {
		t.Fatalf("raw error = %v", err)
	}
	want := `{"tx":"V1 3.3","rx":"","esr":0,"eer":null}` + "\n" +
		"V1 3.300\n" +
		`{"tx":"V1?","rx":"V1 3.300","esr":0,"eer":null}` + "\n"
	if got != want {
		t.Errorf("raw output = %q, want %q", got, want)
	}

	got, err = runCmd(t, base, "", "raw", "V1 99")
	if !errors.Is(err, tti.ErrRange) {
		t.Fatalf("raw error = %v, want ErrRange", err)
	}
	if !strings.Contains(err.Error(), "(ESR: 16, EER: 100)") {
		t.Errorf("error %q lacks register values", err)
	}
	if !strings.Contains(got, `"eer":100`) {
		t.Errorf("raw output = %q, want eer 100", got)
	}

	before := len(sim.Received())
	if _, err := runCmd(t, base, "", "raw", "V9 1"); !errors.Is(err, tti.ErrInvalidCommand) {
		t.Errorf("raw error = %v, want ErrInvalidCommand", err)
	}
	if after := len(sim.Received()); after != before {
		t.Errorf("invalid command reached the instrument: %q", sim.Received()[before:])
	}
}

// TestRun_Shell tests the non-interactive shell
func TestRun_Shell(t *testing.T) {
	sim, base := startSim(t, tti.PLGrammar(), 1)

	input := "# comment\nV1 4\n\nV1?\nBOGUS 1\nquit\nV1 6\n"
	got, err := runCmd(t, base, input, "-model", "pl", "shell")
	if err != nil {
		t.Fatalf("shell error = %v", err)
	}
	if !strings.Contains(got, "V1 4.000\n") {
		t.Errorf("shell output = %q, want V1 reply", got)
	}
	if !strings.Contains(got, "error: tti: execute \"BOGUS 1\" failed") {
		t.Errorf("shell output = %q, want error line", got)
	}
	for _, cmd := range sim.Received() {
		if cmd == "V1 6" {
			t.Error("command after quit was sent")
		}
	}
}

// TestRun_PL tests the PL specific output
func TestRun_PL(t *testing.T) {
	_, base := startSim(t, tti.PLGrammar(), 1)

	got, err := runCmd(t, base, "", "-model", "pl", "get", "1")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	want := "output 1: off, range high, set 0.000 V 0.000 A, measured 0.000 V 0.000 A\n"
	if got != want {
		t.Errorf("get output = %q, want %q", got, want)
	}
}

// TestRun_Errors tests argument and configuration errors
func TestRun_Errors(t *testing.T) {
	_, base := startSim(t, tti.CPXGrammar(), 1)

	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{name: "no command", args: base, wantErr: errUsage},
		{name: "unknown command", args: append(base, "frobnicate"), wantErr: errUsage},
		{name: "missing argument", args: append(base, "set", "1"), wantErr: errUsage},
		{name: "too many arguments", args: append(base, "idn", "now"), wantErr: errUsage},
		{name: "invalid output", args: append(base, "get", "2"), wantErr: tti.ErrInvalidChannel},
		{name: "invalid voltage", args: append(base, "set", "1", "five"), wantMsg: `invalid voltage "five"`},
		{name: "no host", args: []string{"idn"}, wantMsg: "no instrument configured"},
		{name: "bad model", args: append(base, "-model", "qpx", "idn"), wantMsg: "unknown model"},
		{name: "refused", args: []string{"-host", "127.0.0.1", "-port", "1", "idn"}, wantErr: tti.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, nil, "", tt.args...)
			if err == nil {
				t.Fatal("run() succeeded")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("run() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("run() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

// TestRun_Version tests the version flag
func TestRun_Version(t *testing.T) {
	got, err := runCmd(t, nil, "", "-version")
	if err != nil || !strings.HasPrefix(got, "ttictl v"+Version) {
		t.Errorf("run(-version) = %q, %v", got, err)
	}
}

// TestSetupLogger tests level and format selection
func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	log, closeLog, err := setupLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("setupLogger() error = %v", err)
	}
	defer closeLog()

	log.Info("hidden")
	log.WithField("host", "10.0.0.5").Warn("shown")
	got := buf.String()
	if strings.Contains(got, "hidden") || !strings.Contains(got, `"host":"10.0.0.5"`) {
		t.Errorf("log output = %q", got)
	}

	if _, _, err := setupLogger(config.LogConfig{Output: "file", FilePath: t.TempDir()}, &buf); err == nil {
		t.Error("setupLogger() opened a directory as log file")
	}
}
