// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tti

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Client.
//
// A nil *Metrics is valid and records nothing, which is what a Client uses
// unless WithMetrics is given.
type Metrics struct {
	Transactions   *prometheus.CounterVec
	DeviceErrors   *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	Reconnects     prometheus.Counter
	ReconnectFails prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
//
// Example:
//
//	m, err := tti.NewMetrics(prometheus.DefaultRegisterer)
//	ps, _ := tti.NewPL(1, tti.WithMetrics(m))
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tti_transactions_total",
			Help: "Protocol transactions by type and result",
		}, []string{"type", "result"}),
		DeviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tti_device_errors_total",
			Help: "Faults reported by the instrument status registers",
		}, []string{"kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tti_transaction_duration_seconds",
			Help:    "Duration of a transaction including the error check",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tti_reconnects_total",
			Help: "Reconnect attempts after a failed write",
		}),
		ReconnectFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tti_reconnect_failures_total",
			Help: "Reconnect attempts that failed",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.Transactions, m.DeviceErrors, m.Duration, m.Reconnects, m.ReconnectFails,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) observe(txType string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		kind := KindOf(err)
		result = "error"
		if kind.IsDeviceFault() {
			result = "device_error"
			m.DeviceErrors.WithLabelValues(kind.String()).Inc()
		}
	}
	m.Transactions.WithLabelValues(txType, result).Inc()
	m.Duration.WithLabelValues(txType).Observe(time.Since(start).Seconds())
}

func (m *Metrics) reconnectAttempted() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) reconnectFailed() {
	if m == nil {
		return
	}
	m.ReconnectFails.Inc()
}
