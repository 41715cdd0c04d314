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

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sensors holds the simulated house: per-domain limits, comfort bands,
// alert thresholds and per-room physical parameters.
type Sensors struct {
	Temperature TemperatureSensors `yaml:"temperature"`
	Humidity    HumiditySensors    `yaml:"humidity"`
	Energy      EnergySensors      `yaml:"energy"`
}

type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Bounds) Clamp(v float64) float64 {
	return max(b.Min, min(b.Max, v))
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

type ComfortBands struct {
	Optimal    Bounds `yaml:"optimal"`
	Acceptable Bounds `yaml:"acceptable"`
}

type AlertThresholds struct {
	CriticalMin float64 `yaml:"critical_min"`
	CriticalMax float64 `yaml:"critical_max"`
	WarningMin  float64 `yaml:"warning_min"`
	WarningMax  float64 `yaml:"warning_max"`
}

// Climate holds the parameters shared by the temperature and humidity
// models.
type Climate struct {
	Bounds  Bounds          `yaml:"bounds"`
	Comfort ComfortBands    `yaml:"comfort"`
	Alerts  AlertThresholds `yaml:"alerts"`

	// amplitude of the yearly sine
	SeasonalVariation float64 `yaml:"seasonal_variation"`
	// fraction of the seasonal term felt indoors
	IndoorSeasonalScale float64 `yaml:"indoor_seasonal_scale"`
	OutdoorNoise        float64 `yaml:"outdoor_noise"`
	RateConstant        float64 `yaml:"rate_constant"`
	// room that passes the environment through
	OutdoorRoom string `yaml:"outdoor_room"`
	// daily term of the environment itself
	OutdoorDaily []DailyTerm `yaml:"outdoor_daily"`
}

// DailyTerm is one closed-form shape over hour of day.
//
//	bell:   amplitude * exp(-(h-center)^2 / width)
//	sine:   amplitude * sin(2pi (h-center) / 24)
//	cosine: amplitude * cos(2pi (h-center) / 24)
type DailyTerm struct {
	Shape     string  `yaml:"shape"`
	Amplitude float64 `yaml:"amplitude"`
	Center    float64 `yaml:"center"`
	Width     float64 `yaml:"width,omitempty"`
}

// HourRange is an inclusive range of hours. From > To wraps past midnight.
type HourRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

func (r HourRange) Contains(hour int) bool {
	if r.From <= r.To {
		return hour >= r.From && hour <= r.To
	}
	return hour >= r.From || hour <= r.To
}

func (r HourRange) valid() bool {
	return r.From >= 0 && r.From <= 23 && r.To >= 0 && r.To <= 23
}

type TemperatureSensors struct {
	Climate `yaml:",inline"`
	Rooms   []TemperatureRoom `yaml:"rooms"`
}

type TemperatureRoom struct {
	ID                string      `yaml:"id"`
	BaseTemp          float64     `yaml:"base_temp"`
	TempRange         float64     `yaml:"temp_range"`
	HeatingEfficiency float64     `yaml:"heating_efficiency"`
	SensorAccuracy    float64     `yaml:"sensor_accuracy"`
	ThermalMass       float64     `yaml:"thermal_mass"`
	ExternalInfluence float64     `yaml:"external_influence"`
	Daily             []DailyTerm `yaml:"daily,omitempty"`
}

type HumiditySensors struct {
	Climate `yaml:",inline"`

	// chance per tick of a rain or dry spell outside
	WeatherEventChance float64 `yaml:"weather_event_chance"`
	RainShare          float64 `yaml:"rain_share"`
	RainRise           Bounds  `yaml:"rain_rise"`
	DryDrop            Bounds  `yaml:"dry_drop"`

	Rooms []HumidityRoom `yaml:"rooms"`
}

type HumidityRoom struct {
	ID              string          `yaml:"id"`
	BaseHumidity    float64         `yaml:"base_humidity"`
	HumidityRange   float64         `yaml:"humidity_range"`
	VentilationRate float64         `yaml:"ventilation_rate"`
	SensorAccuracy  float64         `yaml:"sensor_accuracy"`
	Dehumidifier    bool            `yaml:"dehumidifier"`
	MoistureSources []string        `yaml:"moisture_sources,omitempty"`
	Daily           []DailyTerm     `yaml:"daily,omitempty"`
	Moisture        []MoistureEvent `yaml:"moisture,omitempty"`
}

// MoistureEvent adds U(Min, Max) to a room's humidity target with the
// given probability during any of Windows. No windows means all day.
type MoistureEvent struct {
	Source      string      `yaml:"source"`
	Windows     []HourRange `yaml:"windows,omitempty"`
	Probability float64     `yaml:"probability"`
	Min         float64     `yaml:"min"`
	Max         float64     `yaml:"max"`
}

type EnergyRates struct {
	Peak         float64     `yaml:"peak"`
	OffPeak      float64     `yaml:"off_peak"`
	Standard     float64     `yaml:"standard"`
	PeakHours    []HourRange `yaml:"peak_hours"`
	OffPeakHours []HourRange `yaml:"off_peak_hours"`
}

type EnergyAlerts struct {
	HighPower     float64 `yaml:"high_power"`
	CriticalPower float64 `yaml:"critical_power"`
	DailyKWh      float64 `yaml:"daily_kwh"`
}

type EnergySensors struct {
	MaxPower    float64      `yaml:"max_power"`
	MaxDailyKWh float64      `yaml:"max_daily_kwh"`
	Currency    string       `yaml:"currency"`
	Rates       EnergyRates  `yaml:"rates"`
	Alerts      EnergyAlerts `yaml:"alerts"`
	Efficiency  Bounds       `yaml:"efficiency"`
	Rooms       []EnergyRoom `yaml:"rooms"`
}

type EnergyRoom struct {
	ID      string   `yaml:"id"`
	Devices []Device `yaml:"devices"`
}

type Device struct {
	ID           string  `yaml:"id"`
	BasePower    float64 `yaml:"base_power"`
	StandbyPower float64 `yaml:"standby_power"`
	Pattern      string  `yaml:"pattern"`
}

// LoadSensors reads sensor tables from a YAML file. Keys missing from
// the file keep their DefaultSensors value.
func LoadSensors(path string) (*Sensors, error) {
	s := DefaultSensors()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sensors: %w", err)
	}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("parse sensors %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("sensors %s: %w", path, err)
	}
	return s, nil
}

// Marshal renders the tables as YAML.
func (s *Sensors) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Validate reports every problem found, joined.
func (s *Sensors) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	checkClimate := func(domain string, c Climate) {
		if c.Bounds.Min >= c.Bounds.Max {
			bad("%s: bounds min %v must be below max %v", domain, c.Bounds.Min, c.Bounds.Max)
		}
		if c.Comfort.Optimal.Min > c.Comfort.Optimal.Max || c.Comfort.Acceptable.Min > c.Comfort.Acceptable.Max {
			bad("%s: comfort band is inverted", domain)
		}
		if c.Alerts.CriticalMin > c.Alerts.WarningMin || c.Alerts.CriticalMax < c.Alerts.WarningMax {
			bad("%s: critical thresholds must lie outside warning thresholds", domain)
		}
		if c.RateConstant <= 0 || c.RateConstant > 1 {
			bad("%s: rate_constant %v out of (0, 1]", domain, c.RateConstant)
		}
		checkDaily(domain+" outdoor_daily", c.OutdoorDaily, bad)
	}

	checkClimate("temperature", s.Temperature.Climate)
	checkClimate("humidity", s.Humidity.Climate)

	seen := map[string]bool{}
	if len(s.Temperature.Rooms) == 0 {
		bad("temperature: no rooms")
	}
	for _, r := range s.Temperature.Rooms {
		where := "temperature room " + r.ID
		if r.ID == "" || seen[r.ID] {
			bad("%s: empty or duplicate id", where)
		}
		seen[r.ID] = true
		if r.ThermalMass < 0 || r.ThermalMass >= 1 {
			bad("%s: thermal_mass %v out of [0, 1)", where, r.ThermalMass)
		}
		if r.SensorAccuracy < 0 {
			bad("%s: negative sensor_accuracy", where)
		}
		checkDaily(where, r.Daily, bad)
	}

	seen = map[string]bool{}
	if len(s.Humidity.Rooms) == 0 {
		bad("humidity: no rooms")
	}
	if !probability(s.Humidity.WeatherEventChance) || !probability(s.Humidity.RainShare) {
		bad("humidity: weather probabilities out of [0, 1]")
	}
	for _, r := range s.Humidity.Rooms {
		where := "humidity room " + r.ID
		if r.ID == "" || seen[r.ID] {
			bad("%s: empty or duplicate id", where)
		}
		seen[r.ID] = true
		if r.SensorAccuracy < 0 {
			bad("%s: negative sensor_accuracy", where)
		}
		checkDaily(where, r.Daily, bad)
		for _, m := range r.Moisture {
			if !probability(m.Probability) || m.Min > m.Max {
				bad("%s: moisture %q has bad probability or range", where, m.Source)
			}
			for _, w := range m.Windows {
				if !w.valid() {
					bad("%s: moisture %q window %v out of 0-23", where, m.Source, w)
				}
			}
		}
	}

	e := s.Energy
	if e.Efficiency.Min <= 0 || e.Efficiency.Max > 1 || e.Efficiency.Min > e.Efficiency.Max {
		bad("energy: efficiency range %v must lie in (0, 1]", e.Efficiency)
	}
	if e.Alerts.HighPower > e.Alerts.CriticalPower {
		bad("energy: high_power above critical_power")
	}
	for _, w := range append(append([]HourRange{}, e.Rates.PeakHours...), e.Rates.OffPeakHours...) {
		if !w.valid() {
			bad("energy: rate window %v out of 0-23", w)
		}
	}
	seen = map[string]bool{}
	if len(e.Rooms) == 0 {
		bad("energy: no rooms")
	}
	for _, r := range e.Rooms {
		where := "energy room " + r.ID
		if r.ID == "" || seen[r.ID] {
			bad("%s: empty or duplicate id", where)
		}
		seen[r.ID] = true
		devs := map[string]bool{}
		for _, d := range r.Devices {
			if d.ID == "" || devs[d.ID] {
				bad("%s: empty or duplicate device id %q", where, d.ID)
			}
			devs[d.ID] = true
			if d.BasePower < 0 || d.StandbyPower < 0 {
				bad("%s: device %s has negative power", where, d.ID)
			}
			if d.Pattern == "" {
				bad("%s: device %s has no pattern", where, d.ID)
			}
		}
	}

	return errors.Join(errs...)
}

func checkDaily(where string, terms []DailyTerm, bad func(string, ...any)) {
	for _, t := range terms {
		switch t.Shape {
		case "sine", "cosine":
		case "bell":
			if t.Width <= 0 {
				bad("%s: bell width must be positive", where)
			}
		default:
			bad("%s: unknown daily shape %q", where, t.Shape)
		}
	}
}

func probability(p float64) bool { return p >= 0 && p <= 1 }

func bell(a, center, width float64) DailyTerm {
	return DailyTerm{Shape: "bell", Amplitude: a, Center: center, Width: width}
}

func sine(a, phase float64) DailyTerm {
	return DailyTerm{Shape: "sine", Amplitude: a, Center: phase}
}

func cosine(a, phase float64) DailyTerm {
	return DailyTerm{Shape: "cosine", Amplitude: a, Center: phase}
}

// DefaultSensors returns the stock six-room house.
func DefaultSensors() *Sensors {
	return &Sensors{
		Temperature: TemperatureSensors{
			Climate: Climate{
				Bounds: Bounds{Min: -30, Max: 50},
				Comfort: ComfortBands{
					Optimal:    Bounds{Min: 20, Max: 24},
					Acceptable: Bounds{Min: 18, Max: 26},
				},
				Alerts:              AlertThresholds{CriticalMin: 10, CriticalMax: 35, WarningMin: 16, WarningMax: 28},
				SeasonalVariation:   8,
				IndoorSeasonalScale: 0.3,
				OutdoorNoise:        2,
				RateConstant:        0.1,
				OutdoorRoom:         "outdoor",
				OutdoorDaily:        []DailyTerm{sine(1, 12)},
			},
			Rooms: []TemperatureRoom{
				{ID: "living_room", BaseTemp: 22, TempRange: 3, HeatingEfficiency: 0.8, SensorAccuracy: 0.5, ThermalMass: 0.7, ExternalInfluence: 0.6,
					Daily: []DailyTerm{sine(1, 12)}},
				{ID: "bedroom", BaseTemp: 20, TempRange: 2.5, HeatingEfficiency: 0.9, SensorAccuracy: 0.4, ThermalMass: 0.8, ExternalInfluence: 0.4,
					Daily: []DailyTerm{cosine(-2, 6)}},
				{ID: "kitchen", BaseTemp: 23, TempRange: 4, HeatingEfficiency: 0.6, SensorAccuracy: 0.6, ThermalMass: 0.5, ExternalInfluence: 0.7,
					Daily: []DailyTerm{bell(1.5, 8, 8), bell(2, 18, 8)}},
				{ID: "bathroom", BaseTemp: 24, TempRange: 5, HeatingEfficiency: 0.7, SensorAccuracy: 0.5, ThermalMass: 0.6, ExternalInfluence: 0.3,
					Daily: []DailyTerm{bell(3, 7, 2), bell(2, 20, 4)}},
				{ID: "basement", BaseTemp: 18, TempRange: 2, HeatingEfficiency: 0.5, SensorAccuracy: 0.3, ThermalMass: 0.9, ExternalInfluence: 0.2,
					Daily: []DailyTerm{sine(1, 12)}},
				{ID: "outdoor", BaseTemp: 15, TempRange: 12, SensorAccuracy: 0.8, ThermalMass: 0.3, ExternalInfluence: 1},
			},
		},
		Humidity: HumiditySensors{
			Climate: Climate{
				Bounds: Bounds{Min: 20, Max: 95},
				Comfort: ComfortBands{
					Optimal:    Bounds{Min: 40, Max: 60},
					Acceptable: Bounds{Min: 35, Max: 65},
				},
				Alerts:              AlertThresholds{CriticalMin: 25, CriticalMax: 80, WarningMin: 30, WarningMax: 70},
				SeasonalVariation:   15,
				IndoorSeasonalScale: 0.5,
				OutdoorNoise:        5,
				RateConstant:        0.05,
				OutdoorRoom:         "outdoor",
				OutdoorDaily:        []DailyTerm{cosine(-8, 6)},
			},
			WeatherEventChance: 0.1,
			RainShare:          0.7,
			RainRise:           Bounds{Min: 10, Max: 25},
			DryDrop:            Bounds{Min: 5, Max: 15},
			Rooms: []HumidityRoom{
				{ID: "living_room", BaseHumidity: 45, HumidityRange: 15, VentilationRate: 0.6, SensorAccuracy: 3,
					MoistureSources: []string{"plants", "people"},
					Daily:           []DailyTerm{sine(3, 12)},
					Moisture: []MoistureEvent{
						{Source: "people", Probability: 0.1, Min: 2, Max: 6},
					}},
				{ID: "bedroom", BaseHumidity: 50, HumidityRange: 20, VentilationRate: 0.4, SensorAccuracy: 2.5,
					MoistureSources: []string{"breathing", "plants"},
					Daily:           []DailyTerm{sine(5, 18)},
					Moisture: []MoistureEvent{
						{Source: "breathing", Windows: []HourRange{{From: 22, To: 6}}, Probability: 1, Min: 2, Max: 8},
					}},
				{ID: "kitchen", BaseHumidity: 55, HumidityRange: 25, VentilationRate: 0.8, SensorAccuracy: 4,
					MoistureSources: []string{"cooking", "dishwasher", "steam"},
					Daily:           []DailyTerm{bell(8, 8, 4), bell(6, 12, 4), bell(10, 18, 6)},
					Moisture: []MoistureEvent{
						{Source: "cooking", Windows: []HourRange{{From: 7, To: 9}, {From: 11, To: 13}, {From: 17, To: 20}}, Probability: 0.4, Min: 10, Max: 25},
					}},
				{ID: "bathroom", BaseHumidity: 65, HumidityRange: 30, VentilationRate: 0.9, SensorAccuracy: 3.5,
					MoistureSources: []string{"shower", "bathtub", "steam"},
					Daily:           []DailyTerm{bell(15, 7, 2), bell(12, 20, 4)},
					Moisture: []MoistureEvent{
						{Source: "shower", Windows: []HourRange{{From: 6, To: 9}, {From: 19, To: 22}}, Probability: 0.3, Min: 20, Max: 40},
					}},
				{ID: "basement", BaseHumidity: 60, HumidityRange: 20, VentilationRate: 0.2, SensorAccuracy: 2, Dehumidifier: true,
					MoistureSources: []string{"ground", "seepage"},
					Daily:           []DailyTerm{sine(2, 12)},
					Moisture: []MoistureEvent{
						{Source: "seepage", Probability: 0.05, Min: 5, Max: 15},
					}},
				{ID: "outdoor", BaseHumidity: 70, HumidityRange: 40, VentilationRate: 1, SensorAccuracy: 5,
					MoistureSources: []string{"weather", "rain", "dew"}},
			},
		},
		Energy: EnergySensors{
			MaxPower:    10000,
			MaxDailyKWh: 50,
			Currency:    "USD",
			Rates: EnergyRates{
				Peak:         0.28,
				OffPeak:      0.12,
				Standard:     0.18,
				PeakHours:    []HourRange{{From: 18, To: 21}},
				OffPeakHours: []HourRange{{From: 23, To: 6}},
			},
			Alerts:     EnergyAlerts{HighPower: 5000, CriticalPower: 8000, DailyKWh: 30},
			Efficiency: Bounds{Min: 0.8, Max: 1},
			Rooms: []EnergyRoom{
				{ID: "living_room", Devices: []Device{
					{ID: "tv", BasePower: 150, StandbyPower: 5, Pattern: "evening"},
					{ID: "sound_system", BasePower: 80, StandbyPower: 2, Pattern: "evening"},
					{ID: "lighting", BasePower: 120, Pattern: "evening"},
					{ID: "air_conditioning", BasePower: 2500, Pattern: "seasonal"},
					{ID: "smart_plugs", BasePower: 50, StandbyPower: 1, Pattern: "random"},
				}},
				{ID: "kitchen", Devices: []Device{
					{ID: "refrigerator", BasePower: 200, StandbyPower: 150, Pattern: "constant"},
					{ID: "dishwasher", BasePower: 1800, StandbyPower: 3, Pattern: "meal_cleanup"},
					{ID: "microwave", BasePower: 1200, StandbyPower: 2, Pattern: "meal_prep"},
					{ID: "oven", BasePower: 3000, Pattern: "cooking"},
					{ID: "coffee_maker", BasePower: 800, StandbyPower: 5, Pattern: "morning"},
					{ID: "lighting", BasePower: 80, Pattern: "meal_times"},
				}},
				{ID: "bedroom", Devices: []Device{
					{ID: "lighting", BasePower: 60, Pattern: "evening_morning"},
					{ID: "phone_charger", BasePower: 12, StandbyPower: 2, Pattern: "night"},
					{ID: "laptop", BasePower: 65, StandbyPower: 3, Pattern: "evening"},
					{ID: "fan", BasePower: 75, Pattern: "night"},
					{ID: "air_purifier", BasePower: 50, StandbyPower: 5, Pattern: "constant"},
				}},
				{ID: "bathroom", Devices: []Device{
					{ID: "lighting", BasePower: 40, Pattern: "morning_evening"},
					{ID: "exhaust_fan", BasePower: 30, Pattern: "bathroom_use"},
					{ID: "hair_dryer", BasePower: 1500, Pattern: "morning"},
					{ID: "water_heater", BasePower: 4000, StandbyPower: 200, Pattern: "hot_water"},
				}},
				{ID: "basement", Devices: []Device{
					{ID: "water_pump", BasePower: 750, Pattern: "intermittent"},
					{ID: "dehumidifier", BasePower: 300, StandbyPower: 5, Pattern: "humidity"},
					{ID: "storage_lighting", BasePower: 25, Pattern: "occasional"},
					{ID: "workshop_tools", BasePower: 500, Pattern: "weekend"},
				}},
				{ID: "outdoor", Devices: []Device{
					{ID: "security_lighting", BasePower: 100, StandbyPower: 10, Pattern: "night"},
					{ID: "garage_door", BasePower: 800, StandbyPower: 5, Pattern: "commute"},
					{ID: "garden_irrigation", BasePower: 200, Pattern: "scheduled"},
					{ID: "pool_pump", BasePower: 1200, Pattern: "seasonal"},
				}},
			},
		},
	}
}
