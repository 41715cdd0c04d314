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

// Package api is the HTTP control surface of the simulation.
//
//	GET  /status                      -> coordinator status
//	GET  /readings                    -> latest reading per room and domain
//	GET  /rooms/{room}/summary        -> cross-domain room summary
//	POST /rooms/{room}/summary/publish -> push the summary to room subscribers
//	POST /start, /stop                -> start or stop every worker
//	POST /workers/{name}/restart      -> restart one worker
//	GET  /history                     -> stored points (?measurement=&room=&since=&until=&limit=)
//	GET  /connections                 -> live peers
//	GET  /ws                          -> websocket peer endpoint
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"homesim/internal/coordinator"
	"homesim/internal/registry"
	"homesim/internal/simulation"
	"homesim/internal/store"
	"homesim/pkg/logger"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 1000
	maxHistoryLimit     = 10000
)

// Controller is the coordinator's control surface.
type Controller interface {
	GetStatus() coordinator.Status
	GetLatestReadings() coordinator.Latest
	GetRoomSummary(room string) (coordinator.Summary, error)
	PublishRoomSummary(room string) (int, error)
	Start(ctx context.Context) error
	Stop()
	RestartWorker(ctx context.Context, name string) error
}

type Peers interface {
	Peers() []registry.PeerInfo
	Stats() registry.Stats
}

type History interface {
	Query(ctx context.Context, q store.Query) ([]store.Point, error)
}

type API struct {
	ctrl    Controller
	peers   Peers
	history History
	ws      http.Handler
	clock   func() time.Time
	log     *logger.Logger
}

// New builds the API. history and ws may be nil; their routes then
// answer 503.
func New(ctrl Controller, peers Peers, history History, ws http.Handler) *API {
	return &API{
		ctrl:    ctrl,
		peers:   peers,
		history: history,
		ws:      ws,
		clock:   time.Now,
		log:     logger.New("API"),
	}
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/readings", a.handleReadings).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}/summary", a.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}/summary/publish", a.handlePublishSummary).Methods(http.MethodPost)
	r.HandleFunc("/start", a.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/stop", a.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/workers/{name}/restart", a.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/history", a.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/connections", a.handleConnections).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.handleWebsocket)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simulation.ErrUnknownRoom), errors.Is(err, coordinator.ErrUnknownWorker):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		a.log.Error("%v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("not available")
)

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) handleReadings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.GetLatestReadings())
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.ctrl.GetRoomSummary(mux.Vars(r)["room"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handlePublishSummary(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	n, err := a.ctrl.PublishRoomSummary(room)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": room, "delivered": n})
}

// Workers outlive the request that starts them; the coordinator stops
// them on shutdown.
func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Start(context.WithoutCancel(r.Context())); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	a.ctrl.Stop()
	writeJSON(w, http.StatusOK, a.ctrl.GetStatus())
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := a.ctrl.RestartWorker(context.WithoutCancel(r.Context()), name); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"worker": name, "status": "restarted"})
}

func (a *API) handleConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": a.peers.Stats(),
		"peers": a.peers.Peers(),
	})
}

func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if a.ws == nil {
		a.writeError(w, fmt.Errorf("websocket: %w", errUnavailable))
		return
	}
	a.ws.ServeHTTP(w, r)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		a.writeError(w, fmt.Errorf("history: %w", errUnavailable))
		return
	}
	q, err := parseQuery(r, a.clock())
	if err != nil {
		a.writeError(w, err)
		return
	}
	points, err := a.history.Query(r.Context(), q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if points == nil {
		points = []store.Point{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(points), "points": points})
}

// parseQuery reads history filters. since and until take RFC 3339 times
// or a duration back from now such as "2h".
func parseQuery(r *http.Request, now time.Time) (store.Query, error) {
	v := r.URL.Query()
	q := store.Query{
		Measurement: v.Get("measurement"),
		Room:        v.Get("room"),
		Limit:       defaultHistoryLimit,
	}
	var err error
	if q.Since, err = ParseTime(v.Get("since"), now); err != nil {
		return q, fmt.Errorf("%w: since: %v", errBadRequest, err)
	}
	if q.Until, err = ParseTime(v.Get("until"), now); err != nil {
		return q, fmt.Errorf("%w: until: %v", errBadRequest, err)
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
		}
		q.Limit = min(n, maxHistoryLimit)
	}
	return q, nil
}

// ParseTime accepts "", an RFC 3339 time or a duration before now.
func ParseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}
