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

package simulation

import (
	"context"
	"errors"
	"fmt"
	"homesim/internal/events"
	"homesim/internal/metrics"
	"homesim/internal/reading"
	"homesim/internal/store"
	"homesim/pkg/eventbus"
	"homesim/pkg/logger"
	"maps"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("worker already running")

// Model is the physics of one domain. The worker serializes every call,
// so implementations need no locking of their own.
type Model interface {
	Domain() reading.Domain
	Rooms() []string
	// Step advances a room by one tick.
	Step(room string, now time.Time) (reading.Reading, error)
	// Current reports a room without advancing it.
	Current(room string, now time.Time) (reading.Reading, error)
}

// Publisher fans readings out to live observers.
type Publisher interface {
	Publish(r reading.Reading)
}

type Options struct {
	Name           string
	Interval       time.Duration
	ErrorBackoff   time.Duration
	UnhealthyAfter int

	Appender  store.Appender
	Publisher Publisher
	Validator *Validator
	Bus       *eventbus.Bus
	Metrics   *metrics.Metrics
	Clock     func() time.Time
}

type Stats struct {
	Name              string         `json:"name"`
	Domain            reading.Domain `json:"domain"`
	Running           bool           `json:"running"`
	Healthy           bool           `json:"healthy"`
	IntervalSeconds   float64        `json:"interval_seconds"`
	Rooms             int            `json:"rooms"`
	Ticks             int64          `json:"ticks"`
	TickErrors        int64          `json:"tick_errors"`
	Readings          int64          `json:"readings"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	LastTick          time.Time      `json:"last_tick,omitzero"`
	LastReading       time.Time      `json:"last_reading,omitzero"`
	LastError         string         `json:"last_error,omitempty"`
}

// Worker runs a Model on a fixed interval, writing every reading to the
// Appender and handing it to the Publisher.
type Worker struct {
	opts  Options
	model Model
	log   *logger.Logger

	// guards the model, the validator and latest
	mu     sync.Mutex
	latest map[string]reading.Reading

	// guards the run state and stats
	runMu   sync.Mutex
	running bool
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

func NewWorker(model Model, opts Options) *Worker {
	if opts.Name == "" {
		opts.Name = string(model.Domain())
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if opts.UnhealthyAfter <= 0 {
		opts.UnhealthyAfter = 3
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Appender == nil {
		opts.Appender = store.Discard{}
	}
	w := &Worker{
		opts:   opts,
		model:  model,
		log:    logger.New(fmt.Sprintf("Worker[%s]", opts.Name)),
		latest: make(map[string]reading.Reading),
	}
	w.stats = Stats{
		Name:            opts.Name,
		Domain:          model.Domain(),
		Healthy:         true,
		IntervalSeconds: opts.Interval.Seconds(),
		Rooms:           len(model.Rooms()),
	}
	return w
}

func (w *Worker) Name() string            { return w.opts.Name }
func (w *Worker) Domain() reading.Domain  { return w.model.Domain() }
func (w *Worker) Rooms() []string         { return append([]string(nil), w.model.Rooms()...) }
func (w *Worker) Interval() time.Duration { return w.opts.Interval }

func (w *Worker) IsRunning() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

func (w *Worker) Stats() Stats {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	s := w.stats
	s.Running = w.running
	return s
}

// Start launches the tick loop. The loop stops when ctx is canceled or
// Stop is called. Starting a running worker returns ErrAlreadyRunning
// and changes nothing.
func (w *Worker) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.gen++
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.opts.Metrics.WorkerRunning(w.opts.Name, true)

	go w.run(loopCtx, w.gen, w.done)
	return nil
}

// Stop flags the worker stopped and cancels its loop. It does not wait
// for a tick in progress; use Wait for that.
func (w *Worker) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	w.cancel()
	w.opts.Metrics.WorkerRunning(w.opts.Name, false)
	w.log.Info("Stopped")
}

// Wait blocks until the most recently started loop has returned.
func (w *Worker) Wait() {
	w.runMu.Lock()
	done := w.done
	w.runMu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	defer w.exited(ctx, gen)

	w.log.Info("Started, %d rooms every %s", len(w.model.Rooms()), w.opts.Interval)
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		wait := ticker.C
		if err := w.tick(ctx); err != nil {
			w.log.Error("tick: %v", err)
			wait = time.After(w.opts.ErrorBackoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-wait:
		}
	}
}

// exited clears the running flag when the loop ends on its own, for
// example when the parent context is canceled.
func (w *Worker) exited(ctx context.Context, gen uint64) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.gen != gen || !w.running {
		return
	}
	w.running = false
	w.cancel()
	w.opts.Metrics.WorkerRunning(w.opts.Name, false)
	w.log.Info("Loop ended: %v", context.Cause(ctx))
}

// tick advances every room and emits the readings. A panic inside the
// model counts as a failed tick.
func (w *Worker) tick(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		w.opts.Metrics.Tick(w.opts.Name, time.Since(start), err)
		w.recordTick(err)
	}()

	var batch []reading.Reading
	var errs []error
	for _, room := range w.model.Rooms() {
		r, err := w.GenerateReading(room)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		batch = append(batch, r)
	}

	if len(batch) > 0 {
		var points []store.Point
		for _, r := range batch {
			points = append(points, Points(r)...)
		}
		if err := w.opts.Appender.WriteBatch(ctx, points); err != nil {
			w.log.Warn("append %d points: %v", len(points), err)
		}
		if w.opts.Publisher != nil {
			for _, r := range batch {
				w.opts.Publisher.Publish(r)
			}
		}
		w.opts.Metrics.Readings(string(w.model.Domain()), len(batch))
		w.publishSet()
	}

	return errors.Join(errs...)
}

func (w *Worker) recordTick(err error) {
	w.runMu.Lock()
	s := &w.stats
	now := w.opts.Clock()
	s.Ticks++
	s.LastTick = now

	var health *events.WorkerHealth
	if err == nil {
		if !s.Healthy {
			health = &events.WorkerHealth{Worker: w.opts.Name, Healthy: true, Time: now}
		}
		s.Healthy = true
		s.ConsecutiveErrors = 0
	} else {
		s.TickErrors++
		s.ConsecutiveErrors++
		s.LastError = err.Error()
		if s.ConsecutiveErrors == w.opts.UnhealthyAfter {
			s.Healthy = false
			health = &events.WorkerHealth{
				Worker:            w.opts.Name,
				ConsecutiveErrors: s.ConsecutiveErrors,
				LastError:         s.LastError,
				Time:              now,
			}
		}
	}
	w.runMu.Unlock()

	if health != nil && w.opts.Bus != nil {
		w.opts.Bus.Publish(events.WorkerHealthTopic(w.opts.Name), *health)
	}
}

// GenerateReading advances one room and returns its new reading. It
// never blocks on I/O.
func (w *Worker) GenerateReading(room string) (reading.Reading, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.opts.Clock()
	r, err := w.model.Step(room, now)
	if err != nil {
		return reading.Reading{}, err
	}
	if err := w.opts.Validator.Check(r); err != nil {
		return reading.Reading{}, err
	}
	w.latest[room] = r

	w.runMu.Lock()
	w.stats.Readings++
	w.stats.LastReading = now
	w.runMu.Unlock()
	return r, nil
}

// Current returns a room's present state as a reading without
// advancing the simulation.
func (w *Worker) Current(room string) (reading.Reading, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Current(room, w.opts.Clock())
}

// Latest returns a copy of the last emitted reading per room.
func (w *Worker) Latest() map[string]reading.Reading {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.latest)
}

func (w *Worker) publishSet() {
	if w.opts.Bus == nil {
		return
	}
	set := events.ReadingSet{
		Domain:   w.model.Domain(),
		Readings: w.Latest(),
		Time:     w.opts.Clock(),
	}
	w.opts.Bus.Publish(events.ReadingsTopic(set.Domain), set)
}
