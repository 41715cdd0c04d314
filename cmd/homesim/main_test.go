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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"homesim/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version)

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, version, v["version"])
}

func TestConfigCommands(t *testing.T) {
	root := t.TempDir()

	out, err := run(t, "--root", root, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"addr": ":8080"`)

	out, err = run(t, "--root", root, "config", "sensors")
	require.NoError(t, err)
	assert.Contains(t, out, "living_room")

	out, err = run(t, "--root", root, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration OK")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "var/config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, configPath), []byte(`{"sensors_file":"sensors.yml"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sensors.yml"),
		[]byte("energy:\n  rooms:\n    - id: garage\n      devices:\n        - id: heater\n          base_power: 1500\n          pattern: sometimes\n"), 0o644))
	_, err = run(t, "--root", root, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sometimes")
}

func TestHistory(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "var/data/readings.db")
	db, err := store.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, db.WriteBatch(context.Background(), []store.Point{
		{Measurement: "temperature", Tags: map[string]string{store.RoomTag: "kitchen"}, Fields: map[string]any{"value": 21.5}, Time: now.Add(-10 * time.Minute)},
		{Measurement: "humidity", Tags: map[string]string{store.RoomTag: "kitchen"}, Fields: map[string]any{"value": 48.0}, Time: now.Add(-5 * time.Minute)},
		{Measurement: "temperature", Tags: map[string]string{store.RoomTag: "bedroom"}, Fields: map[string]any{"value": 19.0}, Time: now.Add(-3 * time.Hour)},
	}))
	require.NoError(t, db.Close())

	out, err := run(t, "--root", root, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "MEASUREMENT")
	assert.Contains(t, out, "value=21.5")
	assert.NotContains(t, out, "bedroom")

	out, err = run(t, "--root", root, "history", "--since", "6h", "--measurement", "temperature", "--json")
	require.NoError(t, err)
	var points []store.Point
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 2)
	assert.Equal(t, "bedroom", points[0].Tags[store.RoomTag])

	out, err = run(t, "--root", root, "history", "--room", "attic")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "No points found."))

	_, err = run(t, "--root", root, "history", "--since", "last tuesday")
	assert.Error(t, err)
}
