// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command ttisim runs a simulated CPX or PL power supply on a TCP port.
//
// Usage:
//
//	ttisim -listen :9221 -model pl -outputs 1 -load 10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	tti "github.com/netascode/go-tti"
	"github.com/netascode/go-tti/ttisim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ttisim: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command line flags
type options struct {
	listen   string
	model    string
	outputs  int
	load     float64
	maxVolts float64
	maxAmps  float64
	identity string
	delay    time.Duration
	level    string
	jsonLog  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("ttisim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.listen, "listen", fmt.Sprintf(":%d", tti.DefaultPort), "listen address")
	fs.StringVar(&o.model, "model", "cpx", "instrument family: cpx or pl")
	fs.IntVar(&o.outputs, "outputs", 1, "number of outputs")
	fs.Float64Var(&o.load, "load", 0, "resistive load in ohms on every output (0: open circuit)")
	fs.Float64Var(&o.maxVolts, "max-volts", ttisim.DefaultMaxVolts, "voltage limit")
	fs.Float64Var(&o.maxAmps, "max-amps", ttisim.DefaultMaxAmps, "current limit")
	fs.StringVar(&o.identity, "idn", ttisim.DefaultIdentity, "*IDN? reply")
	fs.DurationVar(&o.delay, "delay", 0, "delay before every reply")
	fs.StringVar(&o.level, "log-level", "info", "log level")
	fs.BoolVar(&o.jsonLog, "json", false, "log JSON instead of console output")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.outputs < 1 || o.outputs > tti.MaxOutputs {
		return o, fmt.Errorf("invalid number of outputs %d", o.outputs)
	}
	if o.model != "cpx" && o.model != "pl" {
		return o, fmt.Errorf("unknown model %q", o.model)
	}
	return o, nil
}

// initLogger writes console output with RFC3339 timestamps, or JSON lines
func initLogger(out io.Writer, level string, jsonLog bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if !jsonLog {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "ttisim").Logger(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	log, err := initLogger(stdout, o.level, o.jsonLog)
	if err != nil {
		return err
	}

	grammar := tti.CPXGrammar()
	if o.model == "pl" {
		grammar = tti.PLGrammar()
	}

	opts := []ttisim.Option{
		ttisim.WithLogger(log),
		ttisim.WithLimits(o.maxVolts, o.maxAmps),
		ttisim.WithIdentity(o.identity),
	}
	if o.load > 0 {
		opts = append(opts, ttisim.WithLoad(o.load))
	}
	sim := ttisim.New(grammar, o.outputs, opts...)
	sim.SetDelay(o.delay)

	if err := sim.Start(o.listen); err != nil {
		return err
	}
	log.Info().
		Str("addr", sim.Addr()).
		Str("model", o.model).
		Int("outputs", o.outputs).
		Msg("Simulator listening")

	<-ctx.Done()
	log.Info().Msg("Simulator stopping")
	return sim.Close()
}
