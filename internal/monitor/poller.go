// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package monitor polls a power supply and exports its outputs as
// Prometheus gauges, over HTTP and optionally to Redis.
package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Source is the part of tti.PowerSupply the poller reads from
type Source interface {
	NumOutputs() int
	ReadVoltage(ctx context.Context, output int) (float64, error)
	ReadCurrent(ctx context.Context, output int) (float64, error)
	IsEnabled(ctx context.Context, output int) (bool, error)
}

// Reading is the measured state of one output
type Reading struct {
	Output  int     `json:"output"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Enabled bool    `json:"enabled"`
}

// Snapshot is the result of one poll. Error is set when the poll failed,
// in which case Readings holds the outputs read before the failure.
type Snapshot struct {
	Time     time.Time `json:"time"`
	Readings []Reading `json:"readings"`
	Error    string    `json:"error,omitempty"`
}

// OK reports whether the snapshot is from a successful poll
func (s Snapshot) OK() bool {
	return !s.Time.IsZero() && s.Error == ""
}

// Gauges holds the output collectors
type Gauges struct {
	Voltage *prometheus.GaugeVec
	Current *prometheus.GaugeVec
	Enabled *prometheus.GaugeVec
	Polls   *prometheus.CounterVec
}

// NewGauges creates the output collectors and registers them with reg.
// A nil reg skips registration.
func NewGauges(reg prometheus.Registerer) (*Gauges, error) {
	g := &Gauges{
		Voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tti_output_voltage_volts",
			Help: "Measured output voltage",
		}, []string{"output"}),
		Current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tti_output_current_amps",
			Help: "Measured output current",
		}, []string{"output"}),
		Enabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tti_output_enabled",
			Help: "1 when the output is on",
		}, []string{"output"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tti_monitor_polls_total",
			Help: "Number of polls by result",
		}, []string{"result"}),
	}
	if reg == nil {
		return g, nil
	}
	for _, c := range []prometheus.Collector{g.Voltage, g.Current, g.Enabled, g.Polls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Gauges) update(r Reading) {
	label := strconv.Itoa(r.Output)
	g.Voltage.WithLabelValues(label).Set(r.Voltage)
	g.Current.WithLabelValues(label).Set(r.Current)
	enabled := 0.0
	if r.Enabled {
		enabled = 1
	}
	g.Enabled.WithLabelValues(label).Set(enabled)
}

// Publisher receives every snapshot the poller takes
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// Poller reads all outputs of a Source
type Poller struct {
	source    Source
	gauges    *Gauges
	publisher Publisher
	log       logrus.FieldLogger

	mu   sync.RWMutex
	last Snapshot
}

// NewPoller creates a poller. gauges and publisher may be nil.
func NewPoller(source Source, gauges *Gauges, publisher Publisher, log logrus.FieldLogger) *Poller {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Poller{source: source, gauges: gauges, publisher: publisher, log: log}
}

// Last returns the most recent snapshot
func (p *Poller) Last() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Poll reads every output once, updates the gauges and hands the snapshot
// to the publisher. A publish failure is logged and does not fail the poll.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Time: time.Now()}
	err := p.read(ctx, &snap)
	if err != nil {
		snap.Error = err.Error()
		p.log.WithError(err).Warn("Poll failed")
	}

	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()

	if p.gauges != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.gauges.Polls.WithLabelValues(result).Inc()
	}

	if p.publisher != nil {
		if perr := p.publisher.Publish(ctx, snap); perr != nil {
			p.log.WithError(perr).Warn("Publish failed")
		}
	}
	return snap, err
}

func (p *Poller) read(ctx context.Context, snap *Snapshot) error {
	for output := 1; output <= p.source.NumOutputs(); output++ {
		var r Reading
		var err error
		r.Output = output
		if r.Voltage, err = p.source.ReadVoltage(ctx, output); err != nil {
			return err
		}
		if r.Current, err = p.source.ReadCurrent(ctx, output); err != nil {
			return err
		}
		if r.Enabled, err = p.source.IsEnabled(ctx, output); err != nil {
			return err
		}
		snap.Readings = append(snap.Readings, r)
		if p.gauges != nil {
			p.gauges.update(r)
		}
	}
	return nil
}

// Run polls immediately and then every interval until ctx is done.
// Poll failures do not stop the loop.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.WithField("interval", interval).Info("Monitor started")
	for {
		_, _ = p.Poll(ctx)
		select {
		case <-ctx.Done():
			p.log.Info("Monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
