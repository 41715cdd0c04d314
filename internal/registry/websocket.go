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

package registry

import (
	"errors"
	"homesim/internal/config"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrQueueFull  = errors.New("send queue full")
	ErrConnClosed = errors.New("connection closed")
)

// WSConn adapts a websocket to Conn. Messages go through a bounded
// queue drained by one writer goroutine, so Send never blocks.
type WSConn struct {
	ws        *websocket.Conn
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once

	writeWait    time.Duration
	pingInterval time.Duration

	// called once from the writer when a write fails
	onError func(error)
}

func NewWSConn(ws *websocket.Conn, cfg config.RegistryConfig, onError func(error)) *WSConn {
	c := &WSConn{
		ws:           ws,
		queue:        make(chan []byte, cfg.SendQueueSize),
		done:         make(chan struct{}),
		writeWait:    cfg.WriteWait(),
		pingInterval: cfg.PingInterval(),
		onError:      onError,
	}
	go c.writer()
	return c
}

func (c *WSConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer, which sends a close frame and closes the
// socket. Safe to call more than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *WSConn) writer() {
	ping := time.NewTicker(c.pingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.fail(err)
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *WSConn) fail(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

// Handler upgrades requests to websocket peers of a Registry.
type Handler struct {
	reg      *Registry
	cfg      config.RegistryConfig
	upgrader websocket.Upgrader
}

func NewHandler(reg *Registry, cfg config.RegistryConfig) *Handler {
	h := &Handler{reg: reg, cfg: cfg}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin accepts configured origins, localhost, the serving host
// and non-browser clients that send no Origin at all.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	h.reg.log.Debug("checking origin: %q", origin)
	if origin == "" {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, origin) {
		return true
	}
	if strings.Contains(origin, "localhost") {
		return true
	}
	return strings.Contains(origin, r.Host)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reg.log.Error("failed to upgrade websocket: %v", err)
		return
	}

	var id PeerID
	ready := make(chan struct{})
	conn := NewWSConn(ws, h.cfg, func(err error) {
		<-ready
		h.reg.log.Debug("write to %s failed: %v", id, err)
		h.reg.Disconnect(id)
	})
	id = h.reg.Connect(conn)
	close(ready)
	defer h.reg.Disconnect(id)

	readWait := 2 * h.cfg.PingInterval()
	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.reg.log.Debug("read from %s: %v", id, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		h.reg.HandleCommand(id, raw)
	}
}
