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

// Package reading holds the values the simulation emits and the rules
// that judge them.
package reading

import (
	"fmt"
	"math"
	"time"
)

type Domain string

const (
	Temperature Domain = "temperature"
	Humidity    Domain = "humidity"
	Energy      Domain = "energy"
)

// Domains lists every domain in display order.
var Domains = []Domain{Temperature, Humidity, Energy}

func ParseDomain(s string) (Domain, error) {
	for _, d := range Domains {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// Unit returns the display unit of a domain's value.
func (d Domain) Unit() string {
	switch d {
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	case Energy:
		return "W"
	}
	return ""
}

// SensorID names the single simulated sensor of a domain in a room.
func SensorID(d Domain, room string) string {
	prefix := map[Domain]string{Temperature: "temp", Humidity: "humid", Energy: "energy"}[d]
	return fmt.Sprintf("%s_%s_001", prefix, room)
}

// Reading is one sensor sample. Readings are built once per tick and
// never modified afterwards, so they are safe to share between
// goroutines.
type Reading struct {
	Domain    Domain    `json:"sensor_type"`
	Room      string    `json:"room_id"`
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`

	Climate *Climate `json:"climate,omitempty"`
	Energy  *Power   `json:"energy,omitempty"`
}

// Climate carries the temperature and humidity specific fields.
type Climate struct {
	Target  float64 `json:"target"`
	Outdoor float64 `json:"outdoor"`
	// change since the previous tick
	Trend float64 `json:"trend"`

	Heating       bool `json:"heating_active,omitempty"`
	Cooling       bool `json:"cooling_active,omitempty"`
	Ventilation   bool `json:"ventilation_active,omitempty"`
	Dehumidifier  bool `json:"dehumidifier_active,omitempty"`
	MoistureEvent bool `json:"moisture_event,omitempty"`

	ComfortLabel string `json:"comfort_level,omitempty"`
}

// Power carries the energy specific fields. Value on the enclosing
// Reading is the room's current power, the exact sum of Devices.
type Power struct {
	DailyKWh      float64  `json:"daily_consumption"`
	CostToday     float64  `json:"cost_today"`
	Currency      string   `json:"cost_currency"`
	Rate          float64  `json:"energy_rate"`
	RateType      string   `json:"rate_type"`
	PeakPower     float64  `json:"peak_power"`
	DeviceCount   int      `json:"device_count"`
	ActiveDevices int      `json:"active_devices"`
	Devices       []Device `json:"devices"`
}

type Device struct {
	ID         string  `json:"device_id"`
	Power      float64 `json:"power"`
	Active     bool    `json:"is_active"`
	Efficiency float64 `json:"efficiency"`
}

// Totals sums energy across the house.
type Totals struct {
	Power     float64 `json:"total_power"`
	DailyKWh  float64 `json:"total_daily_consumption"`
	CostToday float64 `json:"total_cost_today"`
	PeakPower float64 `json:"peak_power"`
	Rooms     int     `json:"rooms"`
}

// HouseTotals folds the latest energy readings of every room.
func HouseTotals(readings []Reading) Totals {
	var t Totals
	for _, r := range readings {
		if r.Energy == nil {
			continue
		}
		t.Rooms++
		t.Power += r.Value
		t.DailyKWh += r.Energy.DailyKWh
		t.CostToday += r.Energy.CostToday
		t.PeakPower = max(t.PeakPower, r.Energy.PeakPower)
	}
	return t
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
