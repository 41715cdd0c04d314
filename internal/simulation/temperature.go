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
	// target-current gap that switches heating or cooling on
	heatingHysteresis = 1.0
	heatingGain       = 0.5
	coolingGain       = 0.3
	influenceScale    = 0.1
	noiseScale        = 0.1
)

type temperatureRoom struct {
	cfg   config.TemperatureRoom
	daily Profile
	state climateState
}

// TemperatureModel moves each room toward a target built from its base,
// the season, its daily profile and the outdoor temperature. Rooms whose
// gap to target exceeds the hysteresis run heating or cooling.
type TemperatureModel struct {
	cfg   config.TemperatureSensors
	env   environment
	rooms map[string]*temperatureRoom
	order []string
	rand  *rand.Rand
}

func NewTemperatureModel(cfg config.TemperatureSensors, r *rand.Rand) (*TemperatureModel, error) {
	m := &TemperatureModel{
		cfg:   cfg,
		rooms: make(map[string]*temperatureRoom, len(cfg.Rooms)),
		rand:  r,
	}

	outdoorBase, found := 0.0, false
	for _, rc := range cfg.Rooms {
		daily, err := NewProfile(rc.Daily)
		if err != nil {
			return nil, fmt.Errorf("temperature room %s: %w", rc.ID, err)
		}
		m.rooms[rc.ID] = &temperatureRoom{
			cfg:   rc,
			daily: daily,
			state: climateState{current: rc.BaseTemp, target: rc.BaseTemp},
		}
		m.order = append(m.order, rc.ID)
		if rc.ID == cfg.OutdoorRoom {
			outdoorBase, found = rc.BaseTemp, true
		}
	}
	if !found {
		return nil, fmt.Errorf("temperature: outdoor room %q is not configured", cfg.OutdoorRoom)
	}
	for _, room := range m.rooms {
		room.state.outdoor = outdoorBase
	}

	env, err := newEnvironment(cfg.Climate, outdoorBase)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	m.env = env
	return m, nil
}

func (m *TemperatureModel) Domain() reading.Domain { return reading.Temperature }
func (m *TemperatureModel) Rooms() []string        { return m.order }

func (m *TemperatureModel) Step(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Temperature, room)
	}
	outdoor := m.env.sample(now, m.rand, 0)
	st := &rm.state

	if room == m.cfg.OutdoorRoom {
		st.heating, st.cooling = false, false
		st.advance(outdoor, outdoor, outdoor, m.cfg.Bounds, now)
		return st.reading(reading.Temperature, room, now), nil
	}

	c := rm.cfg
	target := c.BaseTemp +
		m.cfg.IndoorSeasonalScale*seasonal(m.cfg.SeasonalVariation, now) +
		rm.daily.At(hourOfDay(now)) +
		(outdoor-c.BaseTemp)*c.ExternalInfluence*influenceScale

	diff := target - st.current
	st.heating = diff > heatingHysteresis
	st.cooling = diff < -heatingHysteresis

	delta := diff * (1 - c.ThermalMass) * m.cfg.RateConstant
	switch {
	case st.heating:
		delta += c.HeatingEfficiency * heatingGain
	case st.cooling:
		delta -= c.HeatingEfficiency * coolingGain
	}
	delta += m.rand.NormFloat64() * c.SensorAccuracy * noiseScale

	st.advance(st.current+delta, target, outdoor, m.cfg.Bounds, now)
	return st.reading(reading.Temperature, room, now), nil
}

func (m *TemperatureModel) Current(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Temperature, room)
	}
	return rm.state.reading(reading.Temperature, room, now), nil
}
