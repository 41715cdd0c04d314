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
	"math"
	"time"
)

// Shape is one closed-form term of a daily profile.
type Shape interface {
	At(hour float64) float64
	shape()
}

// Gaussian is Amplitude * exp(-(h-Center)^2 / Width).
type Gaussian struct{ Amplitude, Center, Width float64 }

// Sine is Amplitude * sin(2pi (h-Phase) / 24).
type Sine struct{ Amplitude, Phase float64 }

// Cosine is Amplitude * cos(2pi (h-Phase) / 24).
type Cosine struct{ Amplitude, Phase float64 }

func (g Gaussian) At(h float64) float64 {
	d := h - g.Center
	return g.Amplitude * math.Exp(-d*d/g.Width)
}

func (s Sine) At(h float64) float64 {
	return s.Amplitude * math.Sin(2*math.Pi*(h-s.Phase)/24)
}

func (c Cosine) At(h float64) float64 {
	return c.Amplitude * math.Cos(2*math.Pi*(h-c.Phase)/24)
}

func (Gaussian) shape() {}
func (Sine) shape()     {}
func (Cosine) shape()   {}

// Profile is the sum of its shapes. An empty profile is flat at zero.
type Profile []Shape

func (p Profile) At(hour float64) float64 {
	var v float64
	for _, s := range p {
		v += s.At(hour)
	}
	return v
}

func NewProfile(terms []config.DailyTerm) (Profile, error) {
	p := make(Profile, 0, len(terms))
	for _, t := range terms {
		switch t.Shape {
		case "bell":
			if t.Width <= 0 {
				return nil, fmt.Errorf("bell term needs a positive width")
			}
			p = append(p, Gaussian{Amplitude: t.Amplitude, Center: t.Center, Width: t.Width})
		case "sine":
			p = append(p, Sine{Amplitude: t.Amplitude, Phase: t.Center})
		case "cosine":
			p = append(p, Cosine{Amplitude: t.Amplitude, Phase: t.Center})
		default:
			return nil, fmt.Errorf("unknown daily shape %q", t.Shape)
		}
	}
	return p, nil
}

// hourOfDay is the local hour including the minute fraction.
func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

// seasonal is the yearly sine, peaking in late June.
func seasonal(amplitude float64, t time.Time) float64 {
	return amplitude * math.Sin(2*math.Pi*float64(t.YearDay()-81)/365)
}
