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
	"homesim/internal/reading"
	"homesim/internal/store"
)

const (
	MeasurementTemperature = "temperature"
	MeasurementHumidity    = "humidity"
	MeasurementEnergy      = "energy_consumption"
	MeasurementDevice      = "device_energy"
)

// Points converts a reading into the records written to the Appender.
// Energy readings produce one room point plus one point per device.
func Points(r reading.Reading) []store.Point {
	tags := map[string]string{
		"room_id":     r.Room,
		"sensor_id":   r.SensorID,
		"sensor_type": string(r.Domain),
	}

	switch {
	case r.Climate != nil:
		c := r.Climate
		fields := map[string]any{
			"value":   r.Value,
			"target":  c.Target,
			"outdoor": c.Outdoor,
			"trend":   c.Trend,
		}
		measurement := MeasurementTemperature
		if r.Domain == reading.Humidity {
			measurement = MeasurementHumidity
			fields["ventilation_active"] = c.Ventilation
			fields["dehumidifier_active"] = c.Dehumidifier
			fields["moisture_event"] = c.MoistureEvent
			tags["comfort_level"] = c.ComfortLabel
		} else {
			fields["heating_active"] = c.Heating
			fields["cooling_active"] = c.Cooling
		}
		return []store.Point{{Measurement: measurement, Tags: tags, Fields: fields, Time: r.Timestamp}}

	case r.Energy != nil:
		e := r.Energy
		tags["rate_type"] = e.RateType
		points := make([]store.Point, 0, 1+len(e.Devices))
		points = append(points, store.Point{
			Measurement: MeasurementEnergy,
			Tags:        tags,
			Fields: map[string]any{
				"value":             r.Value,
				"daily_consumption": e.DailyKWh,
				"cost_today":        e.CostToday,
				"energy_rate":       e.Rate,
				"peak_power":        e.PeakPower,
				"device_count":      e.DeviceCount,
				"active_devices":    e.ActiveDevices,
			},
			Time: r.Timestamp,
		})
		for _, d := range e.Devices {
			points = append(points, store.Point{
				Measurement: MeasurementDevice,
				Tags: map[string]string{
					"room_id":     r.Room,
					"device_id":   d.ID,
					"sensor_type": string(r.Domain),
				},
				Fields: map[string]any{
					"value":      d.Power,
					"is_active":  d.Active,
					"efficiency": d.Efficiency,
				},
				Time: r.Timestamp,
			})
		}
		return points
	}
	return nil
}
