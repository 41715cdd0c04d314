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
	"fmt"
	"homesim/internal/config"
)

type Severity string

const (
	Critical Severity = "critical"
	Warning  Severity = "warning"
)

type Alert struct {
	Domain         Domain   `json:"type"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Rule is one entry of the ordered alert list. Within a group only the
// first matching rule fires.
type Rule struct {
	Group          string
	Domain         Domain
	Severity       Severity
	Match          func(r Reading) bool
	Message        func(r Reading) string
	Recommendation string
}

func below(limit float64) func(Reading) bool { return func(r Reading) bool { return r.Value < limit } }
func above(limit float64) func(Reading) bool { return func(r Reading) bool { return r.Value > limit } }

func outside(lo, hi float64) func(Reading) bool {
	return func(r Reading) bool { return r.Value < lo || r.Value > hi }
}

func msg(format string) func(Reading) string {
	return func(r Reading) string { return fmt.Sprintf(format, r.Value, r.Unit) }
}

// Rules builds the alert list from configured thresholds. Critical
// rules come before warning rules in every group.
func Rules(s *config.Sensors) []Rule {
	t := s.Temperature.Alerts
	h := s.Humidity.Alerts
	e := s.Energy.Alerts

	return []Rule{
		{Group: "temperature", Domain: Temperature, Severity: Critical, Match: below(t.CriticalMin),
			Message: msg("Very low temperature: %.1f%s"), Recommendation: "Check heating system immediately"},
		{Group: "temperature", Domain: Temperature, Severity: Critical, Match: above(t.CriticalMax),
			Message: msg("Very high temperature: %.1f%s"), Recommendation: "Check cooling system immediately"},
		{Group: "temperature", Domain: Temperature, Severity: Warning, Match: outside(t.WarningMin, t.WarningMax),
			Message: msg("Temperature outside comfort range: %.1f%s"), Recommendation: "Adjust thermostat"},

		{Group: "humidity", Domain: Humidity, Severity: Critical, Match: below(h.CriticalMin),
			Message: msg("Very low humidity: %.1f%s"), Recommendation: "Consider using a humidifier"},
		{Group: "humidity", Domain: Humidity, Severity: Critical, Match: above(h.CriticalMax),
			Message: msg("Very high humidity: %.1f%s"), Recommendation: "Check for leaks and improve ventilation"},
		{Group: "humidity", Domain: Humidity, Severity: Warning, Match: below(h.WarningMin),
			Message: msg("Low humidity: %.1f%s"), Recommendation: "Consider using a humidifier"},
		{Group: "humidity", Domain: Humidity, Severity: Warning, Match: above(h.WarningMax),
			Message: msg("High humidity: %.1f%s"), Recommendation: "Consider dehumidifier or better ventilation"},

		{Group: "energy_power", Domain: Energy, Severity: Critical, Match: above(e.CriticalPower),
			Message: msg("Critical power consumption: %.0f%s"), Recommendation: "Switch off heavy loads now"},
		{Group: "energy_power", Domain: Energy, Severity: Warning, Match: above(e.HighPower),
			Message: msg("High power consumption: %.0f%s"), Recommendation: "Check for energy-intensive devices"},
		{Group: "energy_daily", Domain: Energy, Severity: Warning,
			Match: func(r Reading) bool { return r.Energy != nil && r.Energy.DailyKWh > e.DailyKWh },
			Message: func(r Reading) string {
				return fmt.Sprintf("High daily consumption: %.1fkWh", r.Energy.DailyKWh)
			},
			Recommendation: "Review device schedules"},
	}
}

// Evaluate runs readings through the rule list and returns the alerts,
// at most one per group. Readings are matched to rules by domain.
func Evaluate(rules []Rule, readings ...Reading) []Alert {
	var alerts []Alert
	fired := map[string]bool{}
	for _, rule := range rules {
		if fired[rule.Group] {
			continue
		}
		for _, r := range readings {
			if r.Domain != rule.Domain || !rule.Match(r) {
				continue
			}
			fired[rule.Group] = true
			alerts = append(alerts, Alert{
				Domain:         rule.Domain,
				Severity:       rule.Severity,
				Message:        rule.Message(r),
				Recommendation: rule.Recommendation,
			})
			break
		}
	}
	return alerts
}
