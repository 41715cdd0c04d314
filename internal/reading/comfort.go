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

package reading

import (
	"homesim/internal/config"
)

const (
	LevelExcellent  = "excellent"
	LevelGood       = "good"
	LevelAcceptable = "acceptable"
	LevelPoor       = "poor"
)

// Comfort weights
const (
	temperatureWeight = 0.6
	humidityWeight    = 0.4
)

type Comfort struct {
	Overall          float64  `json:"overall_score"`
	Level            string   `json:"comfort_level"`
	TemperatureScore int      `json:"temperature_score"`
	HumidityScore    int      `json:"humidity_score"`
	Recommendations  []string `json:"recommendations"`
}

// BandScore scores v against a domain's bands: 100 inside the optimal
// band, 80 inside the acceptable band, 60 inside the warning limits and
// 40 beyond them.
func BandScore(v float64, c config.Climate) int {
	switch {
	case c.Comfort.Optimal.Contains(v):
		return 100
	case c.Comfort.Acceptable.Contains(v):
		return 80
	case v >= c.Alerts.WarningMin && v <= c.Alerts.WarningMax:
		return 60
	default:
		return 40
	}
}

func Level(score float64) string {
	switch {
	case score >= 90:
		return LevelExcellent
	case score >= 80:
		return LevelGood
	case score >= 60:
		return LevelAcceptable
	default:
		return LevelPoor
	}
}

// Score computes the weighted comfort of a room from its temperature
// and humidity.
func Score(temp, humidity float64, s *config.Sensors) Comfort {
	ts := BandScore(temp, s.Temperature.Climate)
	hs := BandScore(humidity, s.Humidity.Climate)
	overall := Round(float64(ts)*temperatureWeight+float64(hs)*humidityWeight, 1)
	return Comfort{
		Overall:          overall,
		Level:            Level(overall),
		TemperatureScore: ts,
		HumidityScore:    hs,
		Recommendations:  Recommendations(temp, humidity, s),
	}
}

// Recommendations suggests actions that move a room toward comfort.
// It never returns an empty list.
func Recommendations(temp, humidity float64, s *config.Sensors) []string {
	t := s.Temperature.Comfort
	h := s.Humidity.Comfort
	var recs []string

	if temp < t.Acceptable.Min {
		recs = append(recs, "Consider increasing heating")
	} else if temp > t.Acceptable.Max {
		recs = append(recs, "Consider increasing cooling")
	}

	if humidity < h.Acceptable.Min {
		recs = append(recs, "Consider using a humidifier")
	} else if humidity > h.Acceptable.Max {
		recs = append(recs, "Consider using a dehumidifier or improving ventilation")
	}

	if temp > t.Optimal.Max && humidity > h.Optimal.Max {
		recs = append(recs, "High temperature and humidity, consider air conditioning")
	}

	if len(recs) == 0 {
		recs = append(recs, "Comfort conditions are optimal")
	}
	return recs
}

// HumidityLabel classifies a relative humidity for display.
func HumidityLabel(h float64) string {
	switch {
	case h < 30:
		return "very_dry"
	case h < 40:
		return "dry"
	case h <= 60:
		return "comfortable"
	case h <= 70:
		return "humid"
	default:
		return "very_humid"
	}
}
