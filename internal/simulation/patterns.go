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
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"time"
)

var ErrUnknownPattern = errors.New("unknown usage pattern")

// PatternContext is what a usage pattern may look at.
type PatternContext struct {
	Hour      int
	Weekday   time.Weekday
	DayOfYear int
	Rand      *rand.Rand
}

func newPatternContext(t time.Time, r *rand.Rand) PatternContext {
	return PatternContext{Hour: t.Hour(), Weekday: t.Weekday(), DayOfYear: t.YearDay(), Rand: r}
}

// Pattern decides whether a device runs this tick and at what fraction
// of its base power. The set of implementations is closed.
type Pattern interface {
	Evaluate(pc PatternContext) (active bool, fraction float64)
	pattern()
}

// Curve gives the chance a device is in use at an hour.
type Curve interface {
	Probability(hour int) float64
	curve()
}

type FlatCurve struct{ P float64 }

// BellCurve is Peak * exp(-(h-Center)^2 / Width).
type BellCurve struct{ Peak, Center, Width float64 }

// WaveCurve is Base + Amplitude * sin(pi (h-Start) / HalfPeriod).
type WaveCurve struct{ Base, Amplitude, Start, HalfPeriod float64 }

func (c FlatCurve) Probability(int) float64 { return c.P }

func (c BellCurve) Probability(h int) float64 {
	d := float64(h) - c.Center
	return c.Peak * math.Exp(-d*d/c.Width)
}

func (c WaveCurve) Probability(h int) float64 {
	return c.Base + c.Amplitude*math.Sin(math.Pi*(float64(h)-c.Start)/c.HalfPeriod)
}

func (FlatCurve) curve() {}
func (BellCurve) curve() {}
func (WaveCurve) curve() {}

// Level is the range a running device's power fraction is drawn from.
type Level struct{ Min, Max float64 }

func (l Level) draw(r *rand.Rand) float64 {
	return l.Min + r.Float64()*(l.Max-l.Min)
}

// Constant always runs at full power.
type Constant struct{}

// Windowed runs inside its hour windows with the curve's probability.
type Windowed struct {
	Windows []config.HourRange
	Curve   Curve
	Level   Level
}

// WeekdayGated is a Windowed pattern restricted to some days.
type WeekdayGated struct {
	Days []time.Weekday
	Windowed
}

// SeasonalGated runs only when the seasonal factor exceeds Threshold,
// inside its windows, with probability Scale times the factor.
type SeasonalGated struct {
	Threshold float64
	Scale     float64
	Windows   []config.HourRange
	Level     Level
}

// Uniform runs with a fixed probability at any hour.
type Uniform struct {
	P     float64
	Level Level
}

func (Constant) Evaluate(PatternContext) (bool, float64) { return true, 1 }

func (w Windowed) Evaluate(pc PatternContext) (bool, float64) {
	if !inWindows(w.Windows, pc.Hour) {
		return false, 0
	}
	if pc.Rand.Float64() < w.Curve.Probability(pc.Hour) {
		return true, w.Level.draw(pc.Rand)
	}
	return false, 0
}

func (w WeekdayGated) Evaluate(pc PatternContext) (bool, float64) {
	if !slices.Contains(w.Days, pc.Weekday) {
		return false, 0
	}
	return w.Windowed.Evaluate(pc)
}

func (s SeasonalGated) Evaluate(pc PatternContext) (bool, float64) {
	f := SeasonalFactor(pc.DayOfYear)
	if f <= s.Threshold || !inWindows(s.Windows, pc.Hour) {
		return false, 0
	}
	if pc.Rand.Float64() < s.Scale*f {
		return true, s.Level.draw(pc.Rand)
	}
	return false, 0
}

func (u Uniform) Evaluate(pc PatternContext) (bool, float64) {
	if pc.Rand.Float64() < u.P {
		return true, u.Level.draw(pc.Rand)
	}
	return false, 0
}

func (Constant) pattern()      {}
func (Windowed) pattern()      {}
func (WeekdayGated) pattern()  {}
func (SeasonalGated) pattern() {}
func (Uniform) pattern()       {}

// SeasonalFactor scales seasonal loads: 1 at the equinoxes, 1.3 at the
// solstices.
func SeasonalFactor(dayOfYear int) float64 {
	return 1 + 0.3*math.Abs(math.Sin(2*math.Pi*float64(dayOfYear-81)/365))
}

func inWindows(windows []config.HourRange, hour int) bool {
	for _, w := range windows {
		if w.Contains(hour) {
			return true
		}
	}
	return false
}

func hours(pairs ...int) []config.HourRange {
	out := make([]config.HourRange, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, config.HourRange{From: pairs[i], To: pairs[i+1]})
	}
	return out
}

var patterns = map[string]Pattern{
	"constant": Constant{},

	"evening":         Windowed{hours(18, 23), WaveCurve{Base: 0.7, Amplitude: 0.3, Start: 18, HalfPeriod: 5}, Level{0.6, 1}},
	"morning":         Windowed{hours(6, 9), BellCurve{Peak: 0.8, Center: 7.5, Width: 2}, Level{0.8, 1}},
	"meal_prep":       Windowed{hours(7, 9, 12, 14, 17, 20), BellCurve{Peak: 0.4, Center: 12, Width: 20}, Level{0.7, 1}},
	"meal_cleanup":    Windowed{hours(8, 10, 13, 15, 19, 22), FlatCurve{0.3}, Level{0.8, 1}},
	"cooking":         Windowed{hours(11, 14, 17, 20), FlatCurve{0.2}, Level{0.9, 1}},
	"meal_times":      Windowed{hours(7, 9, 12, 14, 17, 21), FlatCurve{0.8}, Level{0.8, 1}},
	"evening_morning": Windowed{hours(6, 8, 19, 23), FlatCurve{0.6}, Level{0.5, 1}},
	"morning_evening": Windowed{hours(6, 9, 19, 23), FlatCurve{0.7}, Level{0.8, 1}},
	"night":           Windowed{hours(22, 6), FlatCurve{0.8}, Level{0.6, 1}},
	"bathroom_use":    Windowed{hours(6, 9, 19, 23), FlatCurve{0.4}, Level{0.8, 1}},
	"hot_water":       Windowed{hours(6, 9, 18, 22), FlatCurve{0.5}, Level{0.7, 1}},
	"commute":         Windowed{hours(7, 9, 17, 19), FlatCurve{0.2}, Level{0.9, 1}},
	"scheduled":       Windowed{hours(6, 6, 18, 18), FlatCurve{0.8}, Level{0.9, 1}},

	"weekend": WeekdayGated{
		Days:     []time.Weekday{time.Saturday, time.Sunday},
		Windowed: Windowed{hours(9, 17), FlatCurve{0.3}, Level{0.8, 1}},
	},

	"seasonal": SeasonalGated{Threshold: 1.2, Scale: 0.6, Windows: hours(10, 22), Level: Level{0.8, 1}},

	"intermittent": Uniform{P: 0.1, Level: Level{0.8, 1}},
	"humidity":     Uniform{P: 0.3, Level: Level{0.7, 1}},
	"occasional":   Uniform{P: 0.05, Level: Level{0.8, 1}},
	"random":       Uniform{P: 0.3, Level: Level{0.4, 1}},
}

// LookupPattern resolves a configured pattern name.
func LookupPattern(name string) (Pattern, error) {
	p, ok := patterns[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPattern, name)
	}
	return p, nil
}

// PatternNames lists the known pattern names, sorted.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for n := range patterns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
