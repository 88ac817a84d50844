// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

// TestDefaultLogger_LogLevels verifies log level filtering
func TestDefaultLogger_LogLevels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name          string
		level         LogLevel
		logFunc       func(*DefaultLogger)
		expectMessage bool
	}{
		{
			name:          "debug level logs debug",
			level:         LogLevelDebug,
			logFunc:       func(l *DefaultLogger) { l.Debug(ctx, "TX", "line", "V1?") },
			expectMessage: true,
		},
		{
			name:          "info level filters debug",
			level:         LogLevelInfo,
			logFunc:       func(l *DefaultLogger) { l.Debug(ctx, "TX", "line", "V1?") },
			expectMessage: false,
		},
		{
			name:          "warn level filters info",
			level:         LogLevelWarn,
			logFunc:       func(l *DefaultLogger) { l.Info(ctx, "Instrument connected") },
			expectMessage: false,
		},
		{
			name:          "warn level logs warn",
			level:         LogLevelWarn,
			logFunc:       func(l *DefaultLogger) { l.Warn(ctx, "Instrument write failed, reconnecting") },
			expectMessage: true,
		},
		{
			name:          "error level logs error",
			level:         LogLevelError,
			logFunc:       func(l *DefaultLogger) { l.Error(ctx, "Instrument reported an error") },
			expectMessage: true,
		},
		{
			name:          "none level filters all",
			level:         LogLevelNone,
			logFunc:       func(l *DefaultLogger) { l.Error(ctx, "Instrument reported an error") },
			expectMessage: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log.SetOutput(&buf)
			t.Cleanup(func() { log.SetOutput(nil) })

			logger := NewDefaultLogger(tt.level)
			tt.logFunc(logger)

			output := buf.String()
			if tt.expectMessage && output == "" {
				t.Errorf("expected log message but got none")
			}
			if !tt.expectMessage && output != "" {
				t.Errorf("expected no log message but got: %s", output)
			}
		})
	}
}

// TestDefaultLogger_Format checks the level prefix and key-value rendering
func TestDefaultLogger_Format(t *testing.T) {
	tests := []struct {
		name          string
		keysAndValues []any
		expected      []string
		unexpected    []string
	}{
		{
			name:          "even pairs",
			keysAndValues: []any{"host", "10.0.0.5", "port", 9221},
			expected:      []string{"[INFO] Instrument connected", "host=10.0.0.5", "port=9221"},
		},
		{
			name:          "missing value",
			keysAndValues: []any{"host", "10.0.0.5", "port"},
			expected:      []string{"host=10.0.0.5", "port=<MISSING>"},
		},
		{
			name:          "reply with line terminator",
			keysAndValues: []any{"reply", "V1 3.300\r\n[ERROR] forged"},
			expected:      []string{"reply=V1 3.300  [ERROR] forged"},
			unexpected:    []string{"\r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log.SetOutput(&buf)
			t.Cleanup(func() { log.SetOutput(nil) })

			NewDefaultLogger(LogLevelDebug).Info(context.Background(), "Instrument connected", tt.keysAndValues...)

			output := buf.String()
			for _, want := range tt.expected {
				if !strings.Contains(output, want) {
					t.Errorf("expected log to contain %q but got: %s", want, output)
				}
			}
			for _, bad := range tt.unexpected {
				if strings.Contains(output, bad) {
					t.Errorf("expected log NOT to contain %q but got: %q", bad, output)
				}
			}
		})
	}
}

// TestSanitizeLogValue tests control character and Unicode neutralization
func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "plain reply", input: "V1 3.300", expected: "V1 3.300"},
		{name: "integer", input: 9221, expected: "9221"},
		{name: "newline injection", input: "0\n[ERROR] fake", expected: "0 [ERROR] fake"},
		{name: "carriage return", input: "3.300V\r", expected: "3.300V "},
		{name: "tab", input: "a\tb", expected: "a b"},
		{name: "ANSI escape", input: "x\x1B[31m", expected: "x.[31m"},
		{name: "null byte", input: "a\x00b", expected: "a.b"},
		{name: "delete", input: "a\x7Fb", expected: "a.b"},
		{name: "zero-width space dropped", input: "V1\u200B?", expected: "V1?"},
		{name: "byte order mark dropped", input: "\uFEFF*IDN?", expected: "*IDN?"},
		{name: "right-to-left override", input: "ok\u202Ekao", expected: "ok kao"},
		{name: "invalid UTF-8", input: "a\xffb", expected: "a.b"},
		{name: "normal unicode", input: "Spannung 3,3 V µ", expected: "Spannung 3,3 V µ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogValue(tt.input); got != tt.expected {
				t.Errorf("sanitizeLogValue() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestSanitizeLogValue_Truncation tests that long replies are cut
func TestSanitizeLogValue_Truncation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTrunc bool
	}{
		{name: "short value", input: "short", wantTrunc: false},
		{name: "exact max length", input: strings.Repeat("a", MaxLogValueLength), wantTrunc: false},
		{name: "exceeds max length", input: strings.Repeat("a", MaxLogValueLength+1), wantTrunc: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeLogValue(tt.input)
			truncated := strings.HasSuffix(result, "...[TRUNCATED]")
			if truncated != tt.wantTrunc {
				t.Errorf("truncated = %v, want %v (len %d)", truncated, tt.wantTrunc, len(result))
			}
			if len(result) > MaxLogValueLength+len("...[TRUNCATED]") {
				t.Errorf("result length %d exceeds expected max", len(result))
			}
		})
	}
}

// TestNoOpLogger verifies that NoOpLogger produces no output
func TestNoOpLogger(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(nil) })

	ctx := context.Background()
	logger := &NoOpLogger{}
	logger.Debug(ctx, "TX", "line", "V1?")
	logger.Info(ctx, "Instrument connected", "host", "10.0.0.5")
	logger.Warn(ctx, "Instrument write failed, reconnecting")
	logger.Error(ctx, "Instrument reported an error", "esr", 16)

	if output := buf.String(); output != "" {
		t.Errorf("NoOpLogger produced output: %s", output)
	}
}

// TestLogLevel_String tests LogLevel string representation
func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevelNone, "NONE"},
		{LogLevel(42), "UNKNOWN(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestParseLogLevel tests level name parsing
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{" warning ", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"off", LogLevelNone, false},
		{"verbose", LogLevelNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
