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

package rootserv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"homesim/pkg/logger"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// RootServer holds a router and the list of attached sub-handlers.
type RootServer struct {
	log        *logger.Logger
	addr       string
	router     *mux.Router
	subservers map[string]string // path -> description
}

// New creates a new RootServer bound to an address.
func New(addr string) *RootServer {
	rs := &RootServer{
		addr:       addr,
		router:     mux.NewRouter(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
	rs.router.HandleFunc("/", rs.handleIndex).Methods(http.MethodGet)
	return rs
}

// Attach registers a handler under a path prefix. The prefix is stripped
// so the handler sees clean URLs ("/api/status" arrives as "/status").
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		ms.log.Error("Attach: refusing to mount %q over the index", desc)
		return
	}
	ms.log.Info("Attach: %s (%s)", path, desc)

	ms.subservers[path] = desc
	ms.router.PathPrefix(path).Handler(http.StripPrefix(path, handler))
}

type indexEntry struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// handleIndex lists the attached sub-servers.
func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make([]indexEntry, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, indexEntry{Path: path, Description: ms.subservers[path]})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(entries)
}

// Handler returns the fully wrapped handler: panic recovery and access log.
func (ms *RootServer) Handler() http.Handler {
	var h http.Handler = ms.router
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true), handlers.RecoveryLogger(recoveryLogger{ms.log}))(h)
	h = handlers.CustomLoggingHandler(nil, h, ms.accessLog)
	return h
}

func (ms *RootServer) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	ms.log.Debug("%s %s %d %dB", p.Request.Method, p.URL.Path, p.StatusCode, p.Size)
}

type recoveryLogger struct{ log *logger.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.log.Error("%s", strings.TrimSpace(fmt.Sprintln(v...)))
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Running on %s", ms.addr)

	srv := &http.Server{
		Addr:              ms.addr,
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			ms.log.Error("Shutdown: %v", err)
		}
		ms.log.Info("Stopped")
	case err := <-errCh:
		ms.log.Error("Stopped: %T %+v", err, err)
	}
}
