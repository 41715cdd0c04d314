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
	"errors"
	"fmt"
	"homesim/internal/config"
	"homesim/internal/reading"
	"math/rand/v2"
	"time"
)

var ErrUnknownRoom = errors.New("unknown room")

func unknownRoom(d reading.Domain, room string) error {
	return fmt.Errorf("%s: %w %q", d, ErrUnknownRoom, room)
}

// environment is the outdoor proxy every indoor room leans toward.
type environment struct {
	base      float64
	amplitude float64
	daily     Profile
	noise     float64
}

func newEnvironment(c config.Climate, outdoorBase float64) (environment, error) {
	daily, err := NewProfile(c.OutdoorDaily)
	if err != nil {
		return environment{}, fmt.Errorf("outdoor daily profile: %w", err)
	}
	return environment{
		base:      outdoorBase,
		amplitude: c.SeasonalVariation,
		daily:     daily,
		noise:     c.OutdoorNoise,
	}, nil
}

// sample draws one outdoor value. extra is added before the noise.
func (e environment) sample(now time.Time, r *rand.Rand, extra float64) float64 {
	v := e.base + seasonal(e.amplitude, now) + e.daily.At(hourOfDay(now)) + extra
	return v + r.NormFloat64()*e.noise
}

// climateState is the hidden state of one room for temperature or
// humidity.
type climateState struct {
	current float64
	target  float64
	outdoor float64
	trend   float64

	heating       bool
	cooling       bool
	ventilation   bool
	dehumidifier  bool
	moistureEvent bool

	lastUpdate time.Time
}

func (s *climateState) advance(next, target, outdoor float64, bounds config.Bounds, now time.Time) {
	next = bounds.Clamp(next)
	s.trend = next - s.current
	s.current = next
	s.target = target
	s.outdoor = outdoor
	s.lastUpdate = now
}

func (s *climateState) reading(d reading.Domain, room string, now time.Time) reading.Reading {
	ts := s.lastUpdate
	if ts.IsZero() {
		ts = now
	}
	value := reading.Round(s.current, 1)
	c := &reading.Climate{
		Target:        reading.Round(s.target, 1),
		Outdoor:       reading.Round(s.outdoor, 1),
		Trend:         reading.Round(s.trend, 2),
		Heating:       s.heating,
		Cooling:       s.cooling,
		Ventilation:   s.ventilation,
		Dehumidifier:  s.dehumidifier,
		MoistureEvent: s.moistureEvent,
	}
	if d == reading.Humidity {
		c.ComfortLabel = reading.HumidityLabel(value)
	}
	return reading.Reading{
		Domain:    d,
		Room:      room,
		SensorID:  reading.SensorID(d, room),
		Value:     value,
		Unit:      d.Unit(),
		Timestamp: ts,
		Climate:   c,
	}
}
