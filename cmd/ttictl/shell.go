// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	shellPrompt      = "tti> "
	historyFileName  = ".ttictl_history"
	shellHistorySize = 500
)

// lineReader yields shell input lines until io.EOF
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (s *scannerReader) ReadLine() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerReader) Close() error { return nil }

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine() (string, error) {
	line, err := r.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		r.rl.SaveToHistory(trimmed) //nolint:errcheck // history is optional
	}
	return line, nil
}

func (r *readlineReader) Close() error { return r.rl.Close() }

// newLineReader uses readline when stdin is a terminal and a plain
// scanner otherwise, so the shell can be fed from a pipe.
func newLineReader(stdin io.Reader, stdout io.Writer) (lineReader, bool, error) {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &scannerReader{scanner: bufio.NewScanner(stdin)}, false, nil
	}

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, historyFileName)
	}
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:                 shellPrompt,
		HistoryFile:            historyFile,
		HistoryLimit:           shellHistorySize,
		DisableAutoSaveHistory: true,
		Stdout:                 stdout,
	})
	if err != nil {
		return nil, false, fmt.Errorf("init line editor: %w", err)
	}
	return &readlineReader{rl: rl}, true, nil
}

// shell reads raw commands until EOF or "quit". Command failures are
// printed and do not end the session.
func (a *app) shell(ctx context.Context, d *device, _ []string) error {
	lr, interactive, err := newLineReader(a.stdin, a.stdout)
	if err != nil {
		return err
	}
	defer lr.Close() //nolint:errcheck // best effort on exit

	if interactive {
		fmt.Fprintf(a.stdout, "Connected to %s. Type quit to exit.\n", d.Host)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := lr.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "quit" || line == "exit":
			return nil
		}

		if err := a.rawCommand(ctx, d, line); err != nil {
			fmt.Fprintf(a.stdout, "error: %v\n", err)
		}
	}
}
