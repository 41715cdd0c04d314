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

// Package coordinator owns the domain workers: it starts and stops them
// together, watches their liveness and builds cross-domain summaries.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"homesim/internal/config"
	"homesim/internal/metrics"
	"homesim/internal/reading"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/pkg/eventbus"
	"homesim/pkg/logger"
	"homesim/pkg/sysmon"
	"slices"
	"sync"
	"time"
)

var ErrUnknownWorker = errors.New("unknown worker")

// State is the system status.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StateError   State = "error"
)

// Worker is the part of simulation.Worker the coordinator drives.
type Worker interface {
	Name() string
	Domain() reading.Domain
	Rooms() []string
	Interval() time.Duration
	IsRunning() bool
	Stats() simulation.Stats
	Start(ctx context.Context) error
	Stop()
	Wait()
	Current(room string) (reading.Reading, error)
	Latest() map[string]reading.Reading
}

// Broadcaster delivers messages to live peers.
type Broadcaster interface {
	Broadcast(msg registry.Message) int
	BroadcastTopic(t registry.Topic, msg registry.Message) int
	Stats() registry.Stats
}

// HostMonitor reports host resources for the status view.
type HostMonitor interface {
	Snapshot() sysmon.Snapshot
}

type Options struct {
	Config      config.CoordinatorConfig
	Sensors     *config.Sensors
	Broadcaster Broadcaster
	Bus         *eventbus.Bus
	Host        HostMonitor
	Metrics     *metrics.Metrics
	Clock       func() time.Time
}

type Statistics struct {
	MonitorTicks int64            `json:"monitor_ticks"`
	Errors       int64            `json:"errors"`
	SystemAlerts int64            `json:"system_alerts"`
	LastTick     time.Time        `json:"last_tick,omitzero"`
	Readings     map[string]int64 `json:"readings"`
}

type Status struct {
	Status        State                       `json:"status"`
	UptimeSeconds float64                     `json:"uptime_seconds"`
	StartTime     time.Time                   `json:"start_time,omitzero"`
	Workers       map[string]simulation.Stats `json:"workers"`
	Statistics    Statistics                  `json:"statistics"`
	Connections   registry.Stats              `json:"connections"`
	Host          *sysmon.Snapshot            `json:"host,omitempty"`
}

// Alert is the payload of a system_alert broadcast.
type Alert struct {
	Kind     string           `json:"alert_type"`
	Severity reading.Severity `json:"severity"`
	Worker   string           `json:"worker"`
	Message  string           `json:"message"`
	Time     time.Time        `json:"timestamp"`
}

const (
	AlertWorkerDown      = "worker_down"
	AlertWorkerUnhealthy = "worker_unhealthy"
)

type Coordinator struct {
	workers []Worker
	opts    Options
	rules   []reading.Rule
	log     *logger.Logger

	mu          sync.Mutex
	state       State
	startTime   time.Time
	stats       Statistics
	stopMonitor context.CancelFunc
	monitorDone chan struct{}

	// workers seen running since their last liveness alert
	armed      map[string]bool
	// workers inside RestartWorker; liveness skips them
	restarting map[string]bool
}

func New(workers []Worker, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sensors == nil {
		opts.Sensors = config.DefaultSensors()
	}
	if opts.Config.StatusEveryTicks <= 0 {
		opts.Config.StatusEveryTicks = 10
	}
	return &Coordinator{
		workers: workers,
		opts:    opts,
		rules:   reading.Rules(opts.Sensors),
		log:     logger.New("Coordinator"),
		state:   StateStopped,

		armed:      make(map[string]bool),
		restarting: make(map[string]bool),
	}
}

// Run is the service entry point: it optionally starts everything and
// stops it all once ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info("Running with %d workers", len(c.workers))
	if c.opts.Config.AutoStart {
		if err := c.Start(ctx); err != nil {
			c.log.Error("autostart: %v", err)
		}
	}
	<-ctx.Done()
	c.Stop()
	c.log.Info("Stopped")
}

func (c *Coordinator) Workers() []Worker {
	return slices.Clone(c.workers)
}

func (c *Coordinator) worker(name string) (Worker, error) {
	for _, w := range c.workers {
		if w.Name() == name {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownWorker, name)
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start starts every worker and the monitoring loop. ctx bounds how long
// they run.
func (c *Coordinator) Start(ctx context.Context) error {
	err := c.StartAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopMonitor == nil {
		monCtx, cancel := context.WithCancel(ctx)
		c.stopMonitor = cancel
		c.monitorDone = make(chan struct{})
		go c.monitor(monCtx, c.monitorDone)
	}
	return err
}

// Stop ends the monitoring loop and stops every worker.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.stopMonitor, c.monitorDone
	c.stopMonitor, c.monitorDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.StopAll()
}

// StartAll starts every worker concurrently. A worker that is already
// running counts as started.
func (c *Coordinator) StartAll(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		started []string
	)
	for _, w := range c.workers {
		wg.Go(func() {
			err := w.Start(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil || errors.Is(err, simulation.ErrAlreadyRunning) {
				started = append(started, w.Name())
				return
			}
			errs = append(errs, fmt.Errorf("start %s: %w", w.Name(), err))
		})
	}
	wg.Wait()
	err := errors.Join(errs...)

	c.mu.Lock()
	for _, name := range started {
		c.armed[name] = true
	}
	if err != nil {
		c.state = StateError
		c.stats.Errors++
	} else {
		c.state = StateRunning
	}
	if c.startTime.IsZero() || err == nil {
		c.startTime = c.opts.Clock()
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Error("StartAll: %v", err)
	} else {
		c.log.Info("Started %d workers", len(c.workers))
	}
	c.broadcastStatus()
	return err
}

// StopAll stops every worker concurrently and waits for their loops.
func (c *Coordinator) StopAll() {
	var wg sync.WaitGroup
	for _, w := range c.workers {
		wg.Go(func() {
			w.Stop()
			w.Wait()
		})
	}
	wg.Wait()

	c.mu.Lock()
	c.state = StateStopped
	c.startTime = time.Time{}
	clear(c.armed)
	c.mu.Unlock()

	c.log.Info("Stopped %d workers", len(c.workers))
	c.broadcastStatus()
}

// RestartWorker stops a worker, waits the settle delay and starts it
// again under ctx.
func (c *Coordinator) RestartWorker(ctx context.Context, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("restart %s: panic: %v", name, r)
			c.log.Error("%v", err)
		}
		if err != nil && !errors.Is(err, ErrUnknownWorker) {
			c.mu.Lock()
			c.stats.Errors++
			c.mu.Unlock()
		}
	}()

	w, err := c.worker(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.restarting[name] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.restarting, name)
		c.mu.Unlock()
	}()

	c.log.Info("Restarting %s", name)
	w.Stop()
	w.Wait()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.opts.Config.RestartSettle()):
	}

	if err := w.Start(ctx); err != nil && !errors.Is(err, simulation.ErrAlreadyRunning) {
		return fmt.Errorf("restart %s: %w", name, err)
	}
	return nil
}

func (c *Coordinator) GetStatus() Status {
	now := c.opts.Clock()
	st := Status{Workers: make(map[string]simulation.Stats, len(c.workers))}
	readings := make(map[string]int64, len(c.workers))
	for _, w := range c.workers {
		ws := w.Stats()
		st.Workers[w.Name()] = ws
		readings[w.Name()] = ws.Readings
	}

	c.mu.Lock()
	st.Status = c.state
	st.StartTime = c.startTime
	if !c.startTime.IsZero() {
		st.UptimeSeconds = now.Sub(c.startTime).Seconds()
	}
	st.Statistics = c.stats
	c.mu.Unlock()
	st.Statistics.Readings = readings

	if c.opts.Broadcaster != nil {
		st.Connections = c.opts.Broadcaster.Stats()
	}
	if c.opts.Host != nil {
		snap := c.opts.Host.Snapshot()
		st.Host = &snap
	}
	return st
}

func (c *Coordinator) broadcastStatus() {
	if c.opts.Broadcaster == nil {
		return
	}
	c.opts.Broadcaster.Broadcast(registry.SystemStatus(c.GetStatus(), c.opts.Clock()))
}

func (c *Coordinator) alert(a Alert) {
	c.mu.Lock()
	c.stats.SystemAlerts++
	c.mu.Unlock()

	c.log.Warn("%s: %s", a.Kind, a.Message)
	c.opts.Metrics.SystemAlert()
	if c.opts.Broadcaster != nil {
		c.opts.Broadcaster.Broadcast(registry.SystemAlert(a, a.Time))
	}
}
