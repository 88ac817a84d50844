// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command ttictl controls an Aim-TTi CPX or PL power supply.
//
// Usage:
//
//	ttictl [flags] <command> [args]
//
// Commands:
//
//	idn                        print the identification string
//	get <output>               print set and measured voltage and current
//	set <output> <volts> [amps] program voltage and current limit
//	on <output>|all            enable an output
//	off <output>|all           disable an output
//	raw <cmd>...               send raw commands, print replies and diagnostics
//	shell                      interactive raw command shell
//	monitor                    export readings over HTTP and Redis
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	tti "github.com/netascode/go-tti"
	"github.com/netascode/go-tti/internal/config"
	"github.com/netascode/go-tti/logadapter"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "ttictl: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("ttictl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "configuration file (.yaml, .yml or .toml)")
	host := fs.String("host", "", "instrument host name or address")
	port := fs.Int("port", 0, "instrument TCP port")
	model := fs.String("model", "", "instrument family: cpx or pl")
	outputs := fs.Int("outputs", 0, "number of outputs")
	serialDev := fs.String("serial", "", "serial device, used instead of -host")
	readTimeout := fs.Duration("read-timeout", 0, "reply read timeout")
	logLevel := fs.String("log-level", "", "log level")
	wire := fs.Bool("wire", false, "log wire traffic at debug level")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: ttictl [flags] idn|get|set|on|off|raw|shell|monitor [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "ttictl v%s (Build: %s)\n", Version, BuildTime)
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	// flags override the file and the environment, but only when given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Instrument.Host = *host
		case "port":
			cfg.Instrument.Port = *port
		case "model":
			cfg.Instrument.Model = *model
		case "outputs":
			cfg.Instrument.Outputs = *outputs
		case "serial":
			cfg.Instrument.Serial = *serialDev
		case "read-timeout":
			cfg.Instrument.ReadTimeout = config.Duration{Duration: *readTimeout}
		case "log-level":
			cfg.Log.Level = *logLevel
		case "wire":
			cfg.Log.Wire = *wire
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := setupLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	a := &app{cfg: cfg, log: log, stdin: stdin, stdout: stdout}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

// setupLogger configures logrus from the log section. The returned
// function closes the log file, if any.
func setupLogger(cfg config.LogConfig, stderr io.Writer) (*logrus.Logger, func(), error) {
	log := logrus.New()
	log.SetOutput(stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(file)
		return log, func() { _ = file.Close() }, nil
	}
	return log, func() {}, nil
}

// device is a connected power supply; pl is set for PL models
type device struct {
	*tti.PowerSupply
	pl *tti.PL
}

func (a *app) connect(ctx context.Context, extra ...func(*tti.Client)) (*device, error) {
	in := a.cfg.Instrument
	opts := []func(*tti.Client){
		tti.Port(in.Port),
		tti.ConnectTimeout(in.ConnectTimeout.Duration),
		tti.ReadTimeout(in.ReadTimeout.Duration),
	}
	if a.cfg.Log.Wire {
		opts = append(opts, tti.WithLogger(logadapter.NewLogrus(a.log)))
	}
	target := in.Host
	if in.Serial != "" {
		opts = append(opts, tti.WithDialer(tti.SerialDialer{}))
		target = in.Serial
	}
	if target == "" {
		return nil, fmt.Errorf("no instrument configured: set -host, -serial or %s", config.EnvHost)
	}
	opts = append(opts, extra...)

	var dev device
	if in.Model == config.ModelPL {
		pl, err := tti.NewPL(in.Outputs, opts...)
		if err != nil {
			return nil, err
		}
		dev = device{PowerSupply: pl.PowerSupply, pl: pl}
	} else {
		ps, err := tti.NewCPX(in.Outputs, opts...)
		if err != nil {
			return nil, err
		}
		dev = device{PowerSupply: ps}
	}

	connectCtx, cancel := context.WithTimeout(ctx, in.ConnectTimeout.Duration+time.Second)
	defer cancel()
	if err := dev.Connect(connectCtx, target); err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"target": target,
		"model":  in.Model,
	}).Debug("Connected")
	return &dev, nil
}
