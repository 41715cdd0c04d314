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
	"math"
	"time"
)

var ErrInvalidReading = errors.New("invalid reading")

// largest believable change between two outdoor samples taken less than
// jumpWindow apart
var maxOutdoorJump = map[reading.Domain]float64{
	reading.Temperature: 15,
	reading.Humidity:    50,
}

const jumpWindow = 8 * time.Minute

type sample struct {
	value float64
	at    time.Time
}

// Validator rejects readings a real sensor could not have produced.
// It is not safe for concurrent use; the worker calls it under its lock.
type Validator struct {
	domain      reading.Domain
	bounds      config.Bounds
	outdoorRoom string
	maxJump     float64
	last        map[string]sample
}

// NewValidator checks values against bounds. Readings of outdoorRoom are
// also checked for implausible jumps; pass "" to disable that check.
func NewValidator(d reading.Domain, bounds config.Bounds, outdoorRoom string) *Validator {
	return &Validator{
		domain:      d,
		bounds:      bounds,
		outdoorRoom: outdoorRoom,
		maxJump:     maxOutdoorJump[d],
		last:        make(map[string]sample),
	}
}

func (v *Validator) Check(r reading.Reading) error {
	if v == nil {
		return nil
	}
	if r.Domain != v.domain {
		return fmt.Errorf("%w: %s reading sent to %s check", ErrInvalidReading, r.Domain, v.domain)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: %s/%s value is %v", ErrInvalidReading, r.Domain, r.Room, r.Value)
	}
	if !v.bounds.Contains(r.Value) {
		return fmt.Errorf("%w: %s/%s value %.2f outside [%v, %v]",
			ErrInvalidReading, r.Domain, r.Room, r.Value, v.bounds.Min, v.bounds.Max)
	}

	if r.Room != v.outdoorRoom || v.maxJump <= 0 {
		return nil
	}
	prev, ok := v.last[r.Room]
	v.last[r.Room] = sample{value: r.Value, at: r.Timestamp}
	if !ok {
		return nil
	}
	delta := math.Abs(r.Value - prev.value)
	dt := r.Timestamp.Sub(prev.at)
	if dt < jumpWindow && delta > v.maxJump {
		return fmt.Errorf("%w: %s/%s changed too fast: %.1f in %v",
			ErrInvalidReading, r.Domain, r.Room, delta, dt.Truncate(time.Second))
	}
	return nil
}
