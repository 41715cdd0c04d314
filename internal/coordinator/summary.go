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
	"errors"
	"fmt"
	"homesim/internal/events"
	"homesim/internal/reading"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/pkg/eventbus"
	"maps"
	"slices"
	"time"
)

// Latest holds the newest reading of every room per domain.
type Latest struct {
	Readings map[reading.Domain]map[string]reading.Reading `json:"readings"`
	Totals   reading.Totals                                `json:"energy_totals"`
	Time     time.Time                                     `json:"timestamp"`
}

// Summary is the cross-domain view of one room.
type Summary struct {
	Room        string           `json:"room_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Temperature *reading.Reading `json:"temperature,omitempty"`
	Humidity    *reading.Reading `json:"humidity,omitempty"`
	Energy      *reading.Reading `json:"energy,omitempty"`
	Comfort     *reading.Comfort `json:"comfort,omitempty"`
	Alerts      []reading.Alert  `json:"alerts"`
}

// GetLatestReadings returns the last emitted readings. It never
// advances the simulation.
func (c *Coordinator) GetLatestReadings() Latest {
	out := Latest{
		Readings: make(map[reading.Domain]map[string]reading.Reading, len(c.workers)),
		Time:     c.opts.Clock(),
	}
	for _, w := range c.workers {
		d := w.Domain()
		var set map[string]reading.Reading
		if c.opts.Bus != nil {
			if ev, ok := eventbus.Last[events.ReadingSet](c.opts.Bus, events.ReadingsTopic(d)); ok {
				set = maps.Clone(ev.Readings)
			}
		}
		if set == nil {
			set = w.Latest()
		}
		out.Readings[d] = set
	}

	energy := out.Readings[reading.Energy]
	rooms := slices.Sorted(maps.Keys(energy))
	list := make([]reading.Reading, 0, len(rooms))
	for _, room := range rooms {
		list = append(list, energy[room])
	}
	out.Totals = reading.HouseTotals(list)
	return out
}

// GetRoomSummary reads the present state of a room from every domain
// that knows it, without advancing any of them.
func (c *Coordinator) GetRoomSummary(room string) (Summary, error) {
	s := Summary{Room: room, Timestamp: c.opts.Clock(), Alerts: []reading.Alert{}}
	var found []reading.Reading

	for _, w := range c.workers {
		r, err := w.Current(room)
		if errors.Is(err, simulation.ErrUnknownRoom) {
			continue
		}
		if err != nil {
			return Summary{}, fmt.Errorf("%s summary: %w", w.Name(), err)
		}
		found = append(found, r)
		switch r.Domain {
		case reading.Temperature:
			s.Temperature = &r
		case reading.Humidity:
			s.Humidity = &r
		case reading.Energy:
			s.Energy = &r
		}
	}
	if len(found) == 0 {
		return Summary{}, fmt.Errorf("%w %q", simulation.ErrUnknownRoom, room)
	}

	if s.Temperature != nil && s.Humidity != nil {
		comfort := reading.Score(s.Temperature.Value, s.Humidity.Value, c.opts.Sensors)
		s.Comfort = &comfort
	}
	if alerts := reading.Evaluate(c.rules, found...); len(alerts) > 0 {
		s.Alerts = alerts
	}
	return s, nil
}

// PublishRoomSummary sends the room's summary to its subscribers and
// reports how many received it.
func (c *Coordinator) PublishRoomSummary(room string) (int, error) {
	s, err := c.GetRoomSummary(room)
	if err != nil {
		return 0, err
	}
	if c.opts.Broadcaster == nil {
		return 0, nil
	}
	return c.opts.Broadcaster.BroadcastTopic(registry.RoomTopic(room), registry.RoomSummary(s, s.Timestamp)), nil
}
