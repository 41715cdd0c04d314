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

// switching thresholds in percent relative humidity
const (
	ventilationOn       = 60.0
	ventilationOff      = 45.0
	ventilationMinRate  = 0.5
	ventilationGain     = 0.1
	dehumidifierOn      = 55.0
	dehumidifierOff     = 50.0
	dehumidifierEffect  = 5.0
	humidityOutdoorGain = 0.1
)

type humidityRoom struct {
	cfg   config.HumidityRoom
	daily Profile
	state climateState
}

// HumidityModel is the humidity counterpart of TemperatureModel, with
// ventilation and dehumidifiers as actuators, moisture events inside and
// rain or dry spells outside.
type HumidityModel struct {
	cfg   config.HumiditySensors
	env   environment
	rooms map[string]*humidityRoom
	order []string
	rand  *rand.Rand
}

func NewHumidityModel(cfg config.HumiditySensors, r *rand.Rand) (*HumidityModel, error) {
	m := &HumidityModel{
		cfg:   cfg,
		rooms: make(map[string]*humidityRoom, len(cfg.Rooms)),
		rand:  r,
	}

	outdoorBase, found := 0.0, false
	for _, rc := range cfg.Rooms {
		daily, err := NewProfile(rc.Daily)
		if err != nil {
			return nil, fmt.Errorf("humidity room %s: %w", rc.ID, err)
		}
		m.rooms[rc.ID] = &humidityRoom{
			cfg:   rc,
			daily: daily,
			state: climateState{current: rc.BaseHumidity, target: rc.BaseHumidity},
		}
		m.order = append(m.order, rc.ID)
		if rc.ID == cfg.OutdoorRoom {
			outdoorBase, found = rc.BaseHumidity, true
		}
	}
	if !found {
		return nil, fmt.Errorf("humidity: outdoor room %q is not configured", cfg.OutdoorRoom)
	}
	for _, room := range m.rooms {
		room.state.outdoor = outdoorBase
	}

	env, err := newEnvironment(cfg.Climate, outdoorBase)
	if err != nil {
		return nil, fmt.Errorf("humidity: %w", err)
	}
	m.env = env
	return m, nil
}

func (m *HumidityModel) Domain() reading.Domain { return reading.Humidity }
func (m *HumidityModel) Rooms() []string        { return m.order }

// weather draws the outdoor rain or dry spell for this tick.
func (m *HumidityModel) weather() float64 {
	if m.rand.Float64() >= m.cfg.WeatherEventChance {
		return 0
	}
	if m.rand.Float64() < m.cfg.RainShare {
		return m.cfg.RainRise.Min + m.rand.Float64()*(m.cfg.RainRise.Max-m.cfg.RainRise.Min)
	}
	return -(m.cfg.DryDrop.Min + m.rand.Float64()*(m.cfg.DryDrop.Max-m.cfg.DryDrop.Min))
}

// moisture sums the room's moisture events that fire this tick.
func (m *HumidityModel) moisture(rc config.HumidityRoom, hour int) (float64, bool) {
	var total float64
	var fired bool
	for _, ev := range rc.Moisture {
		if len(ev.Windows) > 0 && !inWindows(ev.Windows, hour) {
			continue
		}
		if m.rand.Float64() < ev.Probability {
			total += ev.Min + m.rand.Float64()*(ev.Max-ev.Min)
			fired = true
		}
	}
	return total, fired
}

func (m *HumidityModel) Step(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Humidity, room)
	}
	outdoor := m.cfg.Bounds.Clamp(m.env.sample(now, m.rand, m.weather()))
	st := &rm.state

	if room == m.cfg.OutdoorRoom {
		st.advance(outdoor, outdoor, outdoor, m.cfg.Bounds, now)
		return st.reading(reading.Humidity, room, now), nil
	}

	c := rm.cfg
	moisture, fired := m.moisture(c, now.Hour())
	target := c.BaseHumidity +
		m.cfg.IndoorSeasonalScale*seasonal(m.cfg.SeasonalVariation, now) +
		rm.daily.At(hourOfDay(now)) +
		(outdoor-c.BaseHumidity)*c.VentilationRate*humidityOutdoorGain +
		moisture
	st.moistureEvent = fired

	if st.current > ventilationOn && c.VentilationRate > ventilationMinRate {
		st.ventilation = true
	} else if st.current < ventilationOff {
		st.ventilation = false
	}
	if c.Dehumidifier && st.current > dehumidifierOn {
		st.dehumidifier = true
	} else if st.current < dehumidifierOff {
		st.dehumidifier = false
	}

	diff := target - st.current
	if st.ventilation {
		diff += (outdoor - st.current) * ventilationGain
	}
	if st.dehumidifier {
		diff -= dehumidifierEffect
	}

	delta := diff*m.cfg.RateConstant + m.rand.NormFloat64()*c.SensorAccuracy*noiseScale
	st.advance(st.current+delta, target, outdoor, m.cfg.Bounds, now)
	return st.reading(reading.Humidity, room, now), nil
}

func (m *HumidityModel) Current(room string, now time.Time) (reading.Reading, error) {
	rm, ok := m.rooms[room]
	if !ok {
		return reading.Reading{}, unknownRoom(reading.Humidity, room)
	}
	return rm.state.reading(reading.Humidity, room, now), nil
}
