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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"homesim/internal/coordinator"
	"homesim/internal/reading"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	started   int
	stopped   int
	restarted []string
	startErr  error
}

func (f *fakeController) GetStatus() coordinator.Status {
	return coordinator.Status{Status: coordinator.StateRunning}
}

func (f *fakeController) GetLatestReadings() coordinator.Latest {
	return coordinator.Latest{Readings: map[reading.Domain]map[string]reading.Reading{
		reading.Temperature: {"kitchen": {Domain: reading.Temperature, Room: "kitchen", Value: 21.5}},
	}}
}

func (f *fakeController) GetRoomSummary(room string) (coordinator.Summary, error) {
	if room != "kitchen" {
		return coordinator.Summary{}, fmt.Errorf("%w %q", simulation.ErrUnknownRoom, room)
	}
	return coordinator.Summary{Room: room, Alerts: []reading.Alert{}}, nil
}

func (f *fakeController) PublishRoomSummary(room string) (int, error) {
	if _, err := f.GetRoomSummary(room); err != nil {
		return 0, err
	}
	return 3, nil
}

func (f *fakeController) Start(context.Context) error {
	f.started++
	return f.startErr
}

func (f *fakeController) Stop() { f.stopped++ }

func (f *fakeController) RestartWorker(_ context.Context, name string) error {
	if name != "humidity" {
		return fmt.Errorf("%w %q", coordinator.ErrUnknownWorker, name)
	}
	f.restarted = append(f.restarted, name)
	return nil
}

type fakePeers struct{}

func (fakePeers) Peers() []registry.PeerInfo {
	return []registry.PeerInfo{{ID: "abc", Rooms: []string{"kitchen"}, Domains: []string{}}}
}

func (fakePeers) Stats() registry.Stats {
	return registry.Stats{Connections: 1, Topics: map[string]int{"room:kitchen": 1}}
}

type fakeHistory struct {
	last store.Query
}

func (h *fakeHistory) Query(_ context.Context, q store.Query) ([]store.Point, error) {
	h.last = q
	if q.Measurement == "broken" {
		return nil, errors.New("database is locked")
	}
	return []store.Point{{Measurement: "temperature", Tags: map[string]string{"room_id": "kitchen"}}}, nil
}

func serve(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func newTestAPI() (*API, *fakeController, *fakeHistory) {
	ctrl := &fakeController{}
	hist := &fakeHistory{}
	a := New(ctrl, fakePeers{}, hist, nil)
	a.clock = func() time.Time { return time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC) }
	return a, ctrl, hist
}

func TestStatusAndReadings(t *testing.T) {
	a, _, _ := newTestAPI()
	h := a.Handler()

	rec, body := serve(t, h, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])

	rec, body = serve(t, h, http.MethodGet, "/readings")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["readings"], "temperature")
}

func TestRoomSummaryRoutes(t *testing.T) {
	a, _, _ := newTestAPI()
	h := a.Handler()

	rec, body := serve(t, h, http.MethodGet, "/rooms/kitchen/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kitchen", body["room_id"])

	rec, body = serve(t, h, http.MethodGet, "/rooms/attic/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "attic")

	rec, body = serve(t, h, http.MethodPost, "/rooms/kitchen/summary/publish")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["delivered"])
}

func TestLifecycleRoutes(t *testing.T) {
	a, ctrl, _ := newTestAPI()
	h := a.Handler()

	rec, _ := serve(t, h, http.MethodPost, "/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(t, h, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.started)
	assert.Equal(t, 1, ctrl.stopped)

	rec, _ = serve(t, h, http.MethodPost, "/workers/humidity/restart")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"humidity"}, ctrl.restarted)

	rec, _ = serve(t, h, http.MethodPost, "/workers/pressure/restart")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ctrl.startErr = errors.New("start energy: boom")
	rec, _ = serve(t, h, http.MethodPost, "/start")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHistory(t *testing.T) {
	a, _, hist := newTestAPI()
	h := a.Handler()

	rec, body := serve(t, h, http.MethodGet, "/history?measurement=temperature&room=kitchen&since=2h&limit=50000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "temperature", hist.last.Measurement)
	assert.Equal(t, "kitchen", hist.last.Room)
	assert.Equal(t, time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC), hist.last.Since)
	assert.True(t, hist.last.Until.IsZero())
	assert.Equal(t, maxHistoryLimit, hist.last.Limit)

	rec, _ = serve(t, h, http.MethodGet, "/history?until=2025-06-21T11:00:00Z")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, hist.last.Limit)

	for _, bad := range []string{"since=yesterday", "limit=-1", "limit=ten"} {
		rec, _ = serve(t, h, http.MethodGet, "/history?"+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec, body = serve(t, h, http.MethodGet, "/history?measurement=broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(body["error"].(string), "locked"))
}

func TestUnavailableRoutes(t *testing.T) {
	h := New(&fakeController{}, fakePeers{}, nil, nil).Handler()

	rec, _ := serve(t, h, http.MethodGet, "/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec, _ = serve(t, h, http.MethodGet, "/ws")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConnections(t *testing.T) {
	a, _, _ := newTestAPI()
	rec, body := serve(t, a.Handler(), http.MethodGet, "/connections")
	assert.Equal(t, http.StatusOK, rec.Code)
	peers := body["peers"].([]any)
	require.Len(t, peers, 1)
	assert.Equal(t, "abc", peers[0].(map[string]any)["id"])
}
