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

package events

import (
	"homesim/internal/reading"
	"homesim/pkg/eventbus"
	"time"
)

// WorkerHealthTopic carries WorkerHealth for one worker. Each worker gets
// its own topic so a burst from one never replaces another's event.
func WorkerHealthTopic(worker string) eventbus.Topic {
	return eventbus.Topic("worker.health." + worker)
}

// ReadingsTopic carries the ReadingSet of one domain after every tick.
func ReadingsTopic(d reading.Domain) eventbus.Topic {
	return eventbus.Topic("readings." + string(d))
}

type WorkerHealth struct {
	Worker            string
	Healthy           bool
	ConsecutiveErrors int
	LastError         string
	Time              time.Time
}

// ReadingSet is the latest reading of every room of a domain. The map is
// a private copy owned by the event.
type ReadingSet struct {
	Domain   reading.Domain
	Readings map[string]reading.Reading
	Time     time.Time
}
