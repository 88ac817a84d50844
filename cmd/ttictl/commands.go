// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	tti "github.com/netascode/go-tti"
	"github.com/netascode/go-tti/internal/monitor"
)

func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "idn":
		return a.withDevice(ctx, args, 0, 0, a.idn)
	case "get":
		return a.withDevice(ctx, args, 1, 1, a.get)
	case "set":
		return a.withDevice(ctx, args, 2, 3, a.set)
	case "on":
		return a.withDevice(ctx, args, 1, 1, func(ctx context.Context, d *device, args []string) error {
			return a.switchOutput(ctx, d, args[0], true)
		})
	case "off":
		return a.withDevice(ctx, args, 1, 1, func(ctx context.Context, d *device, args []string) error {
			return a.switchOutput(ctx, d, args[0], false)
		})
	case "raw":
		return a.withDevice(ctx, args, 1, -1, a.raw)
	case "shell":
		return a.withDevice(ctx, args, 0, 0, a.shell)
	case "monitor":
		if len(args) != 0 {
			return fmt.Errorf("%w: monitor takes no arguments", errUsage)
		}
		return a.monitor(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

// withDevice checks the argument count (maxArgs < 0 means unbounded),
// connects and runs fn.
func (a *app) withDevice(ctx context.Context, args []string, minArgs, maxArgs int,
	fn func(context.Context, *device, []string) error) error {
	if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
		return fmt.Errorf("%w: wrong number of arguments", errUsage)
	}
	dev, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer dev.Close() //nolint:errcheck // best effort on exit
	return fn(ctx, dev, args)
}

func (a *app) idn(ctx context.Context, d *device, _ []string) error {
	idn, err := d.Identify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, idn)
	return nil
}

func (a *app) get(ctx context.Context, d *device, args []string) error {
	output, err := d.ParseOutput(args[0])
	if err != nil {
		return err
	}
	volts, err := d.Voltage(ctx, output)
	if err != nil {
		return err
	}
	amps, err := d.CurrentLimit(ctx, output)
	if err != nil {
		return err
	}
	vOut, err := d.ReadVoltage(ctx, output)
	if err != nil {
		return err
	}
	iOut, err := d.ReadCurrent(ctx, output)
	if err != nil {
		return err
	}
	on, err := d.IsEnabled(ctx, output)
	if err != nil {
		return err
	}
	state := "off"
	if on {
		state = "on"
	}
	if d.pl != nil {
		r, err := d.pl.CurrentRange(ctx, output)
		if err != nil {
			return err
		}
		state += ", range " + r.String()
	}
	fmt.Fprintf(a.stdout, "output %d: %s, set %.3f V %.3f A, measured %.3f V %.3f A\n",
		output, state, volts, amps, vOut, iOut)
	return nil
}

func (a *app) set(ctx context.Context, d *device, args []string) error {
	output, err := d.ParseOutput(args[0])
	if err != nil {
		return err
	}
	volts, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid voltage %q", args[1])
	}
	if err := d.SetVoltage(ctx, output, volts); err != nil {
		return err
	}
	if len(args) == 3 {
		amps, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid current %q", args[2])
		}
		if err := d.SetCurrentLimit(ctx, output, amps); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) switchOutput(ctx context.Context, d *device, arg string, on bool) error {
	if arg == "all" {
		if on {
			return d.EnableAll(ctx)
		}
		return d.DisableAll(ctx)
	}
	output, err := d.ParseOutput(arg)
	if err != nil {
		return err
	}
	if on {
		return d.EnableOutput(ctx, output)
	}
	return d.DisableOutput(ctx, output)
}

func (a *app) raw(ctx context.Context, d *device, args []string) error {
	for _, cmd := range args {
		if err := a.rawCommand(ctx, d, cmd); err != nil {
			return err
		}
	}
	return nil
}

// rawCommand sends one command, as a query when it ends in '?', and
// prints the reply followed by the diagnostics snapshot.
func (a *app) rawCommand(ctx context.Context, d *device, cmd string) error {
	cmd = strings.TrimSpace(cmd)
	var err error
	if strings.HasSuffix(cmd, "?") {
		var reply string
		reply, err = d.Process(ctx, cmd)
		if err == nil {
			fmt.Fprintln(a.stdout, reply)
		}
	} else {
		err = d.Execute(ctx, cmd)
	}
	fmt.Fprintln(a.stdout, d.Diagnostics().JSON())

	var ttiErr *tti.Error
	if errors.As(err, &ttiErr) {
		return detailedError{err: ttiErr}
	}
	return err
}

// detailedError reports the status registers along with the message
type detailedError struct {
	err *tti.Error
}

func (e detailedError) Error() string {
	return e.err.DetailedError()
}

func (e detailedError) Unwrap() error {
	return e.err
}

func (a *app) monitor(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := tti.NewMetrics(reg)
	if err != nil {
		return err
	}
	gauges, err := monitor.NewGauges(reg)
	if err != nil {
		return err
	}

	dev, err := a.connect(ctx, tti.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer dev.Close() //nolint:errcheck // best effort on exit

	var publisher monitor.Publisher
	if rc := a.cfg.Redis; rc.Addr != "" {
		rp, err := monitor.NewRedisPublisher(ctx, monitor.RedisOptions{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Channel:  rc.Channel,
			ListKey:  rc.ListKey,
			MaxLen:   rc.MaxLen,
		}, a.log)
		if err != nil {
			return err
		}
		defer rp.Close() //nolint:errcheck // best effort on exit
		publisher = rp
	}

	poller := monitor.NewPoller(dev, gauges, publisher, a.log)
	server := monitor.NewServer(poller, reg, a.log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe(ctx, a.cfg.Monitor.Listen)
		if err != nil {
			cancel()
		}
		errCh <- err
	}()

	pollErr := poller.Run(ctx, a.cfg.Monitor.Interval.Duration)
	cancel()
	if err := <-errCh; err != nil {
		return err
	}
	if errors.Is(pollErr, context.Canceled) {
		return nil
	}
	return pollErr
}
