// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes simulation counters to prometheus. All methods
// accept a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homesim"

type Metrics struct {
	registry *prometheus.Registry

	ticks         *prometheus.CounterVec
	tickErrors    *prometheus.CounterVec
	tickDuration  *prometheus.HistogramVec
	readings      *prometheus.CounterVec
	workerRunning *prometheus.GaugeVec

	peers       prometheus.Gauge
	sent        *prometheus.CounterVec
	pruned      prometheus.Counter
	commands    *prometheus.CounterVec
	systemAlert prometheus.Counter

	points      *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "ticks_total",
			Help:      "Simulation ticks completed per worker.",
		}, []string{"worker"}),
		tickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tick_errors_total",
			Help:      "Simulation ticks that failed or panicked per worker.",
		}, []string{"worker"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tick_duration_seconds",
			Help:      "Time spent generating and emitting one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"worker"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "readings_total",
			Help:      "Readings emitted per domain.",
		}, []string{"domain"}),
		workerRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "running",
			Help:      "1 while the worker loop runs.",
		}, []string{"worker"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "peers",
			Help:      "Connected peers.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "messages_sent_total",
			Help:      "Messages queued to peers by message type.",
		}, []string{"type"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "peers_pruned_total",
			Help:      "Peers removed after a failed delivery.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "commands_total",
			Help:      "Inbound peer commands by type.",
		}, []string{"type"}),
		systemAlert: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "system_alerts_total",
			Help:      "System alerts broadcast by the coordinator.",
		}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "points_total",
			Help:      "Points written per backend.",
		}, []string{"backend"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_errors_total",
			Help:      "Failed writes per backend.",
		}, []string{"backend"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.tickErrors,
		m.tickDuration,
		m.readings,
		m.workerRunning,
		m.peers,
		m.sent,
		m.pruned,
		m.commands,
		m.systemAlert,
		m.points,
		m.storeErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Tick(worker string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(worker).Inc()
	m.tickDuration.WithLabelValues(worker).Observe(d.Seconds())
	if err != nil {
		m.tickErrors.WithLabelValues(worker).Inc()
	}
}

func (m *Metrics) Readings(domain string, n int) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(domain).Add(float64(n))
}

func (m *Metrics) WorkerRunning(worker string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.workerRunning.WithLabelValues(worker).Set(v)
}

func (m *Metrics) Peers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

func (m *Metrics) Sent(msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sent.WithLabelValues(msgType).Add(float64(n))
}

func (m *Metrics) Pruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.pruned.Add(float64(n))
}

func (m *Metrics) Command(cmdType string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(cmdType).Inc()
}

func (m *Metrics) SystemAlert() {
	if m == nil {
		return
	}
	m.systemAlert.Inc()
}

func (m *Metrics) Points(backend string, n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.storeErrors.WithLabelValues(backend).Inc()
		return
	}
	m.points.WithLabelValues(backend).Add(float64(n))
}
