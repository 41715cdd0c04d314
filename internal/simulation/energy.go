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
	"fmt"
	"homesim/internal/config"
	"homesim/internal/reading"
	"math/rand/v2"
	"time"
)

const (
	RatePeak     = "peak"
	RateOffPeak  = "off_peak"
	RateStandard = "standard"
)

// DeviceState is the hidden state of one energy device.
type DeviceState struct {
	CurrentPower float64
	Active       bool
	Efficiency   float64
	DailyKWh     float64
	UsageHours   float64
	LastUpdate   time.Time
}

// RoomTotals are derived from the room's devices on every tick.
type RoomTotals struct {
	CurrentPower float64
	DailyKWh     float64
	CostToday    float64
	PeakPower    float64
}

type device struct {
	cfg     config.Device
	pattern Pattern
	state   DeviceState
}

type energyRoom struct {
	devices []*device
	totals  RoomTotals
	rate    float64
	kind    string
	// local date the daily counters belong to
	day        time.Time
	lastUpdate time.Time
}

// EnergyModel draws each device's power from its usage pattern and
// accumulates consumption and cost per room.
type EnergyModel struct {
	cfg      config.EnergySensors
	interval time.Duration
	rooms    map[string]*energyRoom
	order    []string
	rand     *rand.Rand
}

// NewEnergyModel resolves every device pattern up front; an unknown
// pattern name fails here. interval is the tick length used to turn
// power into energy.
func NewEnergyModel(cfg config.EnergySensors, interval time.Duration, r *rand.Rand) (*EnergyModel, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("energy: interval must be positive")
	}
	m := &EnergyModel{
		cfg:      cfg,
		interval: interval,
		rooms:    make(map[string]*energyRoom, len(cfg.Rooms)),
		rand:     r,
	}
	for _, rc := range cfg.Rooms {
		room := &energyRoom{}
		for _, dc := range rc.Devices {
			p, err := LookupPattern(dc.Pattern)
			if err != nil {
				return nil, fmt.Errorf("energy room %s device %s: %w", rc.ID, dc.ID, err)
			}
			eff := cfg.Efficiency.Min + r.Float64()*(cfg.Efficiency.Max-cfg.Efficiency.Min)
			room.devices = append(room.devices, &device{
				cfg:     dc,
				pattern: p,
				state:   DeviceState{CurrentPower: dc.StandbyPower, Efficiency: eff},
			})
		}
		m.rooms[rc.ID] = room
		m.order = append(m.order, rc.ID)
	}
	return m, nil
}

func (m *EnergyModel) Domain() reading.Domain { return reading.Energy }
func (m *EnergyModel) Rooms() []string        { return m.order }

// Rate returns the tariff in force at an hour.
func (m *EnergyModel) Rate(hour int) (float64, string) {
	r := m.cfg.Rates
	switch {
	case inWindows(r.PeakHours, hour):
		return r.Peak, RatePeak
	case inWindows(r.OffPeakHours, hour):
		return r.OffPeak, RateOffPeak
	default:
		return r.Standard, RateStandard
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *EnergyModel) Step(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Energy, room)
	}

	if !rm.day.IsZero() && !sameDay(rm.day, now) {
		rm.totals = RoomTotals{}
		for _, d := range rm.devices {
			d.state.DailyKWh = 0
			d.state.UsageHours = 0
		}
	}
	rm.day = now

	hours := m.interval.Hours()
	pc := newPatternContext(now, m.rand)

	var total float64
	for _, d := range rm.devices {
		active, fraction := d.pattern.Evaluate(pc)
		p := d.cfg.StandbyPower
		if active {
			p = d.cfg.BasePower * fraction
		}
		p /= d.state.Efficiency

		d.state.CurrentPower = p
		d.state.Active = active
		d.state.DailyKWh += p / 1000 * hours
		if active {
			d.state.UsageHours += hours
		}
		d.state.LastUpdate = now
		total += p
	}

	rate, kind := m.Rate(now.Hour())
	kwh := total / 1000 * hours
	rm.totals.CurrentPower = total
	rm.totals.DailyKWh += kwh
	rm.totals.CostToday += kwh * rate
	rm.totals.PeakPower = max(rm.totals.PeakPower, total)
	rm.rate, rm.kind = rate, kind
	rm.lastUpdate = now

	return m.reading(room, rm, now), nil
}

func (m *EnergyModel) Current(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Energy, room)
	}
	return m.reading(room, rm, now), nil
}

// Devices returns a copy of a room's device states.
func (m *EnergyModel) Devices(room string) (map[string]DeviceState, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return nil, unknownRoom(reading.Energy, room)
	}
	out := make(map[string]DeviceState, len(rm.devices))
	for _, d := range rm.devices {
		out[d.cfg.ID] = d.state
	}
	return out, nil
}

func (m *EnergyModel) reading(room string, rm *energyRoom, now time.Time) reading.Reading {
	ts := rm.lastUpdate
	if ts.IsZero() {
		ts = now
	}
	rate, kind := rm.rate, rm.kind
	if kind == "" {
		rate, kind = m.Rate(ts.Hour())
	}

	devices := make([]reading.Device, 0, len(rm.devices))
	var power float64
	active := 0
	for _, d := range rm.devices {
		devices = append(devices, reading.Device{
			ID:         d.cfg.ID,
			Power:      d.state.CurrentPower,
			Active:     d.state.Active,
			Efficiency: reading.Round(d.state.Efficiency, 2),
		})
		power += d.state.CurrentPower
		if d.state.Active {
			active++
		}
	}

	return reading.Reading{
		Domain:    reading.Energy,
		Room:      room,
		SensorID:  reading.SensorID(reading.Energy, room),
		Value:     power,
		Unit:      reading.Energy.Unit(),
		Timestamp: ts,
		Energy: &reading.Power{
			DailyKWh:      rm.totals.DailyKWh,
			CostToday:     rm.totals.CostToday,
			Currency:      m.cfg.Currency,
			Rate:          rate,
			RateType:      kind,
			PeakPower:     rm.totals.PeakPower,
			DeviceCount:   len(devices),
			ActiveDevices: active,
			Devices:       devices,
		},
	}
}
