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
	"testing"
	"time"

	"homesim/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileShapes(t *testing.T) {
	p, err := NewProfile([]config.DailyTerm{
		{Shape: "bell", Amplitude: 2, Center: 18, Width: 8},
		{Shape: "sine", Amplitude: 1, Center: 12},
		{Shape: "cosine", Amplitude: -2, Center: 6},
	})
	require.NoError(t, err)
	require.Len(t, p, 3)

	assert.InDelta(t, 2.0, p[0].At(18), 1e-12)
	assert.InDelta(t, 1.0, p[1].At(18), 1e-12)
	assert.InDelta(t, -2.0, p[2].At(6), 1e-12)
	assert.InDelta(t, p[0].At(9)+p[1].At(9)+p[2].At(9), p.At(9), 1e-12)

	_, err = NewProfile([]config.DailyTerm{{Shape: "bell", Amplitude: 1}})
	assert.Error(t, err)
	_, err = NewProfile([]config.DailyTerm{{Shape: "ramp"}})
	assert.Error(t, err)

	assert.Zero(t, Profile(nil).At(12))
}

func TestEveryConfiguredPatternResolves(t *testing.T) {
	for _, room := range config.DefaultSensors().Energy.Rooms {
		for _, d := range room.Devices {
			_, err := LookupPattern(d.Pattern)
			assert.NoError(t, err, "%s/%s", room.ID, d.ID)
		}
	}
	assert.Contains(t, PatternNames(), "weekend")
}

func TestConstantPattern(t *testing.T) {
	active, f := Constant{}.Evaluate(newPatternContext(noon, testRand()))
	assert.True(t, active)
	assert.Equal(t, 1.0, f)
}

func TestWindowedPattern(t *testing.T) {
	p := Windowed{Windows: hours(18, 23), Curve: FlatCurve{P: 1}, Level: Level{Min: 0.6, Max: 1}}

	active, _ := p.Evaluate(newPatternContext(noon, testRand()))
	assert.False(t, active, "outside the window")

	evening := time.Date(2025, time.June, 21, 20, 0, 0, 0, time.UTC)
	active, f := p.Evaluate(newPatternContext(evening, testRand()))
	assert.True(t, active)
	assert.GreaterOrEqual(t, f, 0.6)
	assert.LessOrEqual(t, f, 1.0)
}

func TestWeekdayGatedPattern(t *testing.T) {
	p, err := LookupPattern("weekend")
	require.NoError(t, err)

	monday := time.Date(2025, time.June, 23, 12, 0, 0, 0, time.UTC)
	r := testRand()
	for range 100 {
		active, _ := p.Evaluate(newPatternContext(monday, r))
		require.False(t, active)
	}

	saturday := time.Date(2025, time.June, 21, 12, 0, 0, 0, time.UTC)
	hits := 0
	for range 1000 {
		if active, _ := p.Evaluate(newPatternContext(saturday, r)); active {
			hits++
		}
	}
	assert.InDelta(t, 300, hits, 80)
}

func TestSeasonalGatedPattern(t *testing.T) {
	p, err := LookupPattern("seasonal")
	require.NoError(t, err)
	r := testRand()

	equinox := time.Date(2025, time.March, 22, 14, 0, 0, 0, time.UTC)
	for range 100 {
		active, _ := p.Evaluate(newPatternContext(equinox, r))
		require.False(t, active)
	}

	solstice := time.Date(2025, time.June, 21, 14, 0, 0, 0, time.UTC)
	hits := 0
	for range 1000 {
		if active, _ := p.Evaluate(newPatternContext(solstice, r)); active {
			hits++
		}
	}
	// 0.6 * 1.3
	assert.InDelta(t, 780, hits, 80)

	assert.InDelta(t, 1.0, SeasonalFactor(81), 1e-9)
	assert.InDelta(t, 1.3, SeasonalFactor(172), 1e-3)
}

func TestUniformPattern(t *testing.T) {
	p := Uniform{P: 0, Level: Level{Min: 0.4, Max: 1}}
	active, _ := p.Evaluate(newPatternContext(noon, testRand()))
	assert.False(t, active)

	p.P = 1
	active, f := p.Evaluate(newPatternContext(noon, testRand()))
	assert.True(t, active)
	assert.GreaterOrEqual(t, f, 0.4)
}
