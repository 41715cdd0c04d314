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

// Package app wires every component of homesim together.
package app

import (
	"context"
	"errors"
	"fmt"
	"homesim/internal/api"
	"homesim/internal/config"
	"homesim/internal/coordinator"
	"homesim/internal/metrics"
	"homesim/internal/reading"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/internal/store"
	"homesim/pkg/eventbus"
	"homesim/pkg/logger"
	"homesim/pkg/rootserv"
	"homesim/pkg/service"
	"homesim/pkg/sysmon"
	"io"
	"math/rand/v2"
	"path/filepath"
	"time"
)

type App struct {
	Config      *config.Config
	Sensors     *config.Sensors
	Bus         *eventbus.Bus
	Metrics     *metrics.Metrics
	Registry    *registry.Registry
	Workers     []*simulation.Worker
	Coordinator *coordinator.Coordinator
	Store       *store.SQLite
	Server      *rootserv.RootServer

	services []service.Runnable
	batchers []*store.Batcher
	closers  []io.Closer
	log      *logger.Logger
}

// Resolve makes a relative path relative to root.
func Resolve(root, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}

// New builds the application. Nothing runs until Run is called.
func New(ctx context.Context, conf *config.Config) (*App, error) {
	a := &App{Config: conf, log: logger.New("App")}
	if conf.EventBus == nil {
		conf.EventBus = eventbus.New()
	}
	a.Bus = conf.EventBus
	a.Metrics = metrics.New()

	sensors := config.DefaultSensors()
	if conf.SensorsFile != "" {
		var err error
		if sensors, err = config.LoadSensors(Resolve(conf.RootDir, conf.SensorsFile)); err != nil {
			return nil, err
		}
	}
	a.Sensors = sensors

	appender, err := a.buildStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = registry.New(a.Metrics)
	if err := a.buildWorkers(appender); err != nil {
		a.Close()
		return nil, err
	}

	host := sysmon.New(conf.RootDir)
	workers := make([]coordinator.Worker, 0, len(a.Workers))
	for _, w := range a.Workers {
		workers = append(workers, w)
	}
	a.Coordinator = coordinator.New(workers, coordinator.Options{
		Config:      conf.Coordinator,
		Sensors:     sensors,
		Broadcaster: a.Registry,
		Bus:         a.Bus,
		Host:        host,
		Metrics:     a.Metrics,
	})

	control := api.New(a.Coordinator, a.Registry, a.Store, registry.NewHandler(a.Registry, conf.Registry))
	a.Server = rootserv.New(conf.Server.Addr)
	a.Server.Attach("/api", "Simulation control and websocket peers", control.Handler())
	a.Server.Attach("/logger", "Logger", logger.WebService())
	a.Server.Attach("/monitor", "System Monitor", host)
	a.Server.Attach("/metrics", "Prometheus metrics", a.Metrics.Handler())

	a.services = append(a.services,
		service.RunnableFunc(a.runSimulation),
		service.RunnableFunc(a.closeRegistry),
		a.Server,
	)
	return a, nil
}

// buildStorage opens every enabled backend behind its own batcher. A
// sink that cannot be reached at startup is skipped with a warning; the
// local store is required.
func (a *App) buildStorage(ctx context.Context) (store.Appender, error) {
	conf := a.Config.Storage
	db, err := store.OpenSQLite(ctx, Resolve(a.Config.RootDir, conf.SQLitePath))
	if err != nil {
		return nil, err
	}
	a.Store = db
	a.closers = append(a.closers, db)

	fan := store.Fanout{a.batch("sqlite", db)}
	a.services = append(a.services, store.NewRetention(db, conf.Retention(), conf.CleanupInterval()))

	if a.Config.Kafka.Enabled {
		k, err := store.NewKafka(a.Config.Kafka)
		if err != nil {
			a.log.Warn("kafka sink disabled: %v", err)
		} else {
			a.closers = append(a.closers, k)
			fan = append(fan, a.batch("kafka", k))
		}
	}
	if a.Config.MQTT.Enabled {
		m, err := store.NewMQTT(ctx, a.Config.MQTT)
		if err != nil {
			a.log.Warn("mqtt sink disabled: %v", err)
		} else {
			a.closers = append(a.closers, m)
			fan = append(fan, a.batch("mqtt", m))
		}
	}
	return fan, nil
}

func (a *App) batch(name string, backend store.Appender) *store.Batcher {
	b := store.NewBatcher(name, backend, a.Config.Storage.BatchSize, a.Config.Storage.BatchFlush(), a.Metrics)
	a.batchers = append(a.batchers, b)
	return b
}

// runSimulation runs the coordinator and keeps the batchers alive until
// it has returned, so ticks still in flight at shutdown are flushed.
func (a *App) runSimulation(ctx context.Context) {
	sinkCtx, stopSinks := context.WithCancel(context.WithoutCancel(ctx))
	sinks := make([]service.Runnable, 0, len(a.batchers))
	for _, b := range a.batchers {
		sinks = append(sinks, b)
	}
	done := service.Start(sinkCtx, stopSinks, sinks)

	a.Coordinator.Run(ctx)
	stopSinks()
	if code := <-done; code != 0 {
		a.log.Error("batchers exited with code %d", code)
	}
}

func (a *App) buildWorkers(appender store.Appender) error {
	sim := a.Config.Simulation
	s := a.Sensors

	seed := sim.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	a.log.Info("Simulation seed %d", seed)
	// one source per model: workers tick concurrently
	source := func(stream uint64) *rand.Rand {
		return rand.New(rand.NewPCG(seed, stream))
	}

	energyInterval := time.Duration(sim.EnergyIntervalSeconds) * time.Second
	temp, err := simulation.NewTemperatureModel(s.Temperature, source(1))
	if err != nil {
		return err
	}
	hum, err := simulation.NewHumidityModel(s.Humidity, source(2))
	if err != nil {
		return err
	}
	energy, err := simulation.NewEnergyModel(s.Energy, energyInterval, source(3))
	if err != nil {
		return err
	}

	specs := []struct {
		model     simulation.Model
		interval  int
		validator *simulation.Validator
	}{
		{temp, sim.TemperatureIntervalSeconds, simulation.NewValidator(reading.Temperature, s.Temperature.Bounds, s.Temperature.OutdoorRoom)},
		{hum, sim.HumidityIntervalSeconds, simulation.NewValidator(reading.Humidity, s.Humidity.Bounds, s.Humidity.OutdoorRoom)},
		{energy, sim.EnergyIntervalSeconds, simulation.NewValidator(reading.Energy, config.Bounds{Min: 0, Max: s.Energy.MaxPower}, "")},
	}
	for _, sp := range specs {
		a.Workers = append(a.Workers, simulation.NewWorker(sp.model, simulation.Options{
			Interval:       time.Duration(sp.interval) * time.Second,
			ErrorBackoff:   sim.ErrorBackoff(),
			UnhealthyAfter: sim.UnhealthyAfterErrors,
			Appender:       appender,
			Publisher:      a.Registry,
			Validator:      sp.validator,
			Bus:            a.Bus,
			Metrics:        a.Metrics,
		}))
	}
	return nil
}

// closeRegistry drops every peer once shutdown begins.
func (a *App) closeRegistry(ctx context.Context) {
	<-ctx.Done()
	a.Registry.Close()
}

func (a *App) Services() []service.Runnable {
	return a.services
}

// Run starts every service and blocks until they have all returned. The
// exit code is non-zero if a service panicked.
func (a *App) Run(ctx context.Context, cancel context.CancelFunc) int {
	code := <-service.Start(ctx, cancel, a.services)
	if err := a.Close(); err != nil {
		a.log.Error("close: %v", err)
	}
	return code
}

// Close releases storage backends and the event bus.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", a.closers[i], err))
		}
	}
	a.closers = nil
	if a.Bus != nil {
		a.Bus.Close()
	}
	return errors.Join(errs...)
}
