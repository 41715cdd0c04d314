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

package coordinator

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"homesim/internal/config"
	"homesim/internal/events"
	"homesim/internal/reading"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/pkg/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	topic registry.Topic
	msg   registry.Message
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []sent
}

func (b *fakeBroadcaster) Broadcast(msg registry.Message) int {
	return b.BroadcastTopic("", msg)
}

func (b *fakeBroadcaster) BroadcastTopic(t registry.Topic, msg registry.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, sent{topic: t, msg: msg})
	return 1
}

func (b *fakeBroadcaster) Stats() registry.Stats {
	return registry.Stats{Connections: 2, Topics: map[string]int{}}
}

func (b *fakeBroadcaster) ofType(msgType string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.msgs {
		if s.msg.Type == msgType {
			out = append(out, s)
		}
	}
	return out
}

func (b *fakeBroadcaster) alerts(kind string) int {
	n := 0
	for _, s := range b.ofType(registry.TypeSystemAlert) {
		if a, ok := s.msg.Data.(Alert); ok && a.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	coord   *Coordinator
	workers map[reading.Domain]*simulation.Worker
	bcast   *fakeBroadcaster
	bus     *eventbus.Bus
}

func newFixture(t *testing.T, interval time.Duration) *fixture {
	t.Helper()
	return newFixtureWith(t, interval, config.DefaultSensors())
}

func newFixtureWith(t *testing.T, interval time.Duration, s *config.Sensors) *fixture {
	t.Helper()
	// one source per model: workers tick concurrently
	temp, err := simulation.NewTemperatureModel(s.Temperature, rand.New(rand.NewPCG(7, 1)))
	require.NoError(t, err)
	hum, err := simulation.NewHumidityModel(s.Humidity, rand.New(rand.NewPCG(7, 2)))
	require.NoError(t, err)
	energy, err := simulation.NewEnergyModel(s.Energy, interval, rand.New(rand.NewPCG(7, 3)))
	require.NoError(t, err)

	bus := eventbus.New()
	t.Cleanup(bus.Close)

	f := &fixture{
		workers: make(map[reading.Domain]*simulation.Worker),
		bcast:   &fakeBroadcaster{},
		bus:     bus,
	}
	var ws []Worker
	for _, m := range []simulation.Model{temp, hum, energy} {
		w := simulation.NewWorker(m, simulation.Options{Interval: interval, Bus: bus})
		f.workers[m.Domain()] = w
		ws = append(ws, w)
	}
	f.coord = New(ws, Options{
		Config:      config.CoordinatorConfig{StatusEveryTicks: 2, RestartSettleMillis: 1},
		Sensors:     s,
		Broadcaster: f.bcast,
		Bus:         bus,
	})
	t.Cleanup(f.coord.Stop)
	return f
}

func TestStartStopAll(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	c := f.coord
	assert.Equal(t, StateStopped, c.State())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())
	for _, w := range f.workers {
		assert.True(t, w.IsRunning())
	}
	require.NoError(t, c.StartAll(context.Background()), "starting twice is not an error")

	st := c.GetStatus()
	assert.Equal(t, StateRunning, st.Status)
	assert.Len(t, st.Workers, 3)
	assert.Equal(t, 2, st.Connections.Connections)
	assert.False(t, st.StartTime.IsZero())

	c.Stop()
	assert.Equal(t, StateStopped, c.State())
	for _, w := range f.workers {
		assert.False(t, w.IsRunning())
	}
	assert.GreaterOrEqual(t, len(f.bcast.ofType(registry.TypeSystemStatus)), 2)
}

func TestRestartWorkerResumes(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, f.coord.StartAll(ctx))

	w := f.workers[reading.Temperature]
	require.Eventually(t, func() bool { return w.Stats().Ticks > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.coord.RestartWorker(ctx, "temperature"))
	assert.True(t, w.IsRunning())
	before := w.Stats().Ticks
	assert.Eventually(t, func() bool { return w.Stats().Ticks > before }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.coord.RestartWorker(ctx, "pressure"), ErrUnknownWorker)
	f.coord.StopAll()
}

func TestRoomSummary(t *testing.T) {
	f := newFixture(t, time.Hour)

	s, err := f.coord.GetRoomSummary("kitchen")
	require.NoError(t, err)
	require.NotNil(t, s.Temperature)
	require.NotNil(t, s.Humidity)
	require.NotNil(t, s.Energy)
	require.NotNil(t, s.Comfort)
	assert.Contains(t, []string{reading.LevelExcellent, reading.LevelGood, reading.LevelAcceptable, reading.LevelPoor}, s.Comfort.Level)
	assert.NotNil(t, s.Alerts)

	s, err = f.coord.GetRoomSummary("outdoor")
	require.NoError(t, err)
	require.NotNil(t, s.Energy)
	assert.NotNil(t, s.Temperature)

	_, err = f.coord.GetRoomSummary("attic")
	assert.ErrorIs(t, err, simulation.ErrUnknownRoom)

	for _, w := range f.workers {
		assert.Zero(t, w.Stats().Readings, "summaries never advance the simulation")
	}
}

func TestRoomSummaryWithMissingDomain(t *testing.T) {
	sensors := config.DefaultSensors()
	sensors.Energy.Rooms = slices.DeleteFunc(sensors.Energy.Rooms, func(r config.EnergyRoom) bool {
		return r.ID == "bedroom"
	})
	f := newFixtureWith(t, time.Hour, sensors)

	s, err := f.coord.GetRoomSummary("bedroom")
	require.NoError(t, err)
	assert.Nil(t, s.Energy)
	require.NotNil(t, s.Temperature)
	require.NotNil(t, s.Humidity)
	assert.NotNil(t, s.Comfort)

	s, err = f.coord.GetRoomSummary("kitchen")
	require.NoError(t, err)
	assert.NotNil(t, s.Energy)
}

func TestPublishRoomSummary(t *testing.T) {
	f := newFixture(t, time.Hour)
	n, err := f.coord.PublishRoomSummary("bedroom")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.bcast.ofType(registry.TypeRoomSummary)
	require.Len(t, got, 1)
	assert.Equal(t, registry.RoomTopic("bedroom"), got[0].topic)
	summary, ok := got[0].msg.Data.(Summary)
	require.True(t, ok)
	assert.Equal(t, "bedroom", summary.Room)
}

func TestLatestReadings(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	require.NoError(t, f.coord.StartAll(context.Background()))
	require.Eventually(t, func() bool {
		return len(f.coord.GetLatestReadings().Readings[reading.Energy]) == len(config.DefaultSensors().Energy.Rooms)
	}, time.Second, 5*time.Millisecond)
	f.coord.StopAll()

	latest := f.coord.GetLatestReadings()
	assert.Len(t, latest.Readings, 3)
	assert.Len(t, latest.Readings[reading.Temperature], 6)
	assert.Equal(t, len(config.DefaultSensors().Energy.Rooms), latest.Totals.Rooms)
	assert.Positive(t, latest.Totals.Power)
}

func TestLivenessAlertIsEdgeTriggered(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	require.NoError(t, f.coord.Start(context.Background()))

	w := f.workers[reading.Temperature]
	// let the monitor see it running
	time.Sleep(40 * time.Millisecond)
	w.Stop()

	require.Eventually(t, func() bool { return f.bcast.alerts(AlertWorkerDown) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.bcast.alerts(AlertWorkerDown), "one alert per transition")
	assert.Equal(t, StateError, f.coord.State())

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return f.coord.State() == StateRunning }, time.Second, 5*time.Millisecond)
	w.Stop()
	require.Eventually(t, func() bool { return f.bcast.alerts(AlertWorkerDown) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), f.coord.GetStatus().Statistics.SystemAlerts)
}

func TestRestartDoesNotRaiseLivenessAlert(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	// monitor ticks every 10ms, many times inside the settle window
	f.coord.opts.Config.RestartSettleMillis = 100
	ctx := context.Background()
	require.NoError(t, f.coord.Start(ctx))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, f.coord.RestartWorker(ctx, "temperature"))
	time.Sleep(30 * time.Millisecond)

	assert.Zero(t, f.bcast.alerts(AlertWorkerDown))
	assert.Equal(t, StateRunning, f.coord.State())

	// still armed after the restart
	f.workers[reading.Temperature].Stop()
	require.Eventually(t, func() bool { return f.bcast.alerts(AlertWorkerDown) == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkerDownBeforeFirstMonitorTick(t *testing.T) {
	f := newFixture(t, time.Hour)
	require.NoError(t, f.coord.StartAll(context.Background()))

	w := f.workers[reading.Humidity]
	w.Stop()
	w.Wait()
	f.coord.monitorTick()

	assert.Equal(t, 1, f.bcast.alerts(AlertWorkerDown))
	assert.Equal(t, StateError, f.coord.State())
	f.coord.StopAll()
}

func TestUnhealthyWorkerRaisesAlert(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	require.NoError(t, f.coord.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	f.bus.Publish(events.WorkerHealthTopic("energy"), events.WorkerHealth{
		Worker:            "energy",
		ConsecutiveErrors: 3,
		LastError:         "meter offline",
		Time:              time.Now(),
	})
	require.Eventually(t, func() bool { return f.bcast.alerts(AlertWorkerUnhealthy) == 1 }, time.Second, 5*time.Millisecond)

	a := f.bcast.ofType(registry.TypeSystemAlert)[0].msg.Data.(Alert)
	assert.Equal(t, reading.Warning, a.Severity)
	assert.Contains(t, a.Message, "meter offline")
}
