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

// Package registry tracks live peers and routes messages to them by
// room and domain topic.
package registry

import (
	"encoding/json"
	"homesim/internal/metrics"
	"homesim/internal/reading"
	"homesim/pkg/logger"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type PeerID string

// Topic is "room:<id>" or "domain:<name>".
type Topic string

const (
	roomPrefix   = "room:"
	domainPrefix = "domain:"
)

func RoomTopic(room string) Topic { return Topic(roomPrefix + room) }

func DomainTopic(d reading.Domain) Topic { return Topic(domainPrefix + string(d)) }

func (t Topic) Room() (string, bool)   { return strings.CutPrefix(string(t), roomPrefix) }
func (t Topic) Domain() (string, bool) { return strings.CutPrefix(string(t), domainPrefix) }

// Conn is one peer's transport. Send must not block: a transport that
// cannot take the message right away returns an error, which the
// registry treats as a disconnect.
type Conn interface {
	Send(msg []byte) error
	Close() error
	RemoteAddr() string
}

// PeerInfo is a snapshot of one peer.
type PeerInfo struct {
	ID         PeerID    `json:"id"`
	Created    time.Time `json:"created"`
	RemoteAddr string    `json:"remote_addr"`
	Rooms      []string  `json:"rooms"`
	Domains    []string  `json:"domains"`
}

type Stats struct {
	Connections int            `json:"connections"`
	Topics      map[string]int `json:"topics"`
}

type peer struct {
	id      PeerID
	conn    Conn
	created time.Time
}

// Registry is safe for concurrent use. One mutex guards the peer table
// and both topic indices, which always agree with each other.
type Registry struct {
	mu         sync.Mutex
	peers      map[PeerID]*peer
	topicPeers map[Topic]map[PeerID]struct{}
	peerTopics map[PeerID]map[Topic]struct{}

	log     *logger.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

func New(m *metrics.Metrics) *Registry {
	return &Registry{
		peers:      make(map[PeerID]*peer),
		topicPeers: make(map[Topic]map[PeerID]struct{}),
		peerTopics: make(map[PeerID]map[Topic]struct{}),
		log:        logger.New("Registry"),
		metrics:    m,
		clock:      time.Now,
	}
}

func (r *Registry) encode(msg Message) ([]byte, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("encode %s: %v", msg.Type, err)
		return nil, false
	}
	return b, true
}

// Connect registers conn and sends it a connection_confirmed message
// carrying its new id.
func (r *Registry) Connect(conn Conn) PeerID {
	id := PeerID(uuid.NewString())
	now := r.clock()

	r.mu.Lock()
	r.peers[id] = &peer{id: id, conn: conn, created: now}
	r.peerTopics[id] = make(map[Topic]struct{})
	n := len(r.peers)
	r.mu.Unlock()

	r.metrics.Peers(n)
	r.log.Info("Connected %s from %s (%d peers)", id, conn.RemoteAddr(), n)

	r.Send(id, Message{Type: TypeConnectionConfirmed, Timestamp: now, ClientID: string(id)})
	return id
}

// Disconnect removes a peer from the table and every topic, then closes
// its connection. Unknown ids are ignored.
func (r *Registry) Disconnect(id PeerID) {
	r.mu.Lock()
	p := r.removeLocked(id)
	n := len(r.peers)
	r.mu.Unlock()

	if p == nil {
		return
	}
	r.metrics.Peers(n)
	r.log.Info("Disconnected %s (%d peers)", id, n)
	if err := p.conn.Close(); err != nil {
		r.log.Debug("close %s: %v", id, err)
	}
}

func (r *Registry) removeLocked(id PeerID) *peer {
	p, ok := r.peers[id]
	if !ok {
		return nil
	}
	delete(r.peers, id)
	for t := range r.peerTopics[id] {
		subs := r.topicPeers[t]
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.topicPeers, t)
		}
	}
	delete(r.peerTopics, id)
	return p
}

// deliverLocked sends b to each recipient and removes the ones that
// fail. The removed peers are returned for closing outside the lock.
func (r *Registry) deliverLocked(recipients []PeerID, b []byte) (sent int, failed []*peer) {
	for _, id := range recipients {
		p, ok := r.peers[id]
		if !ok {
			continue
		}
		if err := p.conn.Send(b); err != nil {
			r.log.Warn("send to %s failed, dropping peer: %v", id, err)
			failed = append(failed, r.removeLocked(id))
			continue
		}
		sent++
	}
	return sent, failed
}

func (r *Registry) deliver(msgType string, b []byte, pick func() []PeerID) int {
	r.mu.Lock()
	sent, failed := r.deliverLocked(pick(), b)
	n := len(r.peers)
	r.mu.Unlock()

	r.metrics.Sent(msgType, sent)
	if len(failed) > 0 {
		r.metrics.Pruned(len(failed))
		r.metrics.Peers(n)
		for _, p := range failed {
			_ = p.conn.Close()
		}
	}
	return sent
}

// Send delivers msg to one peer. A failed send disconnects the peer; it
// reports whether the message was queued.
func (r *Registry) Send(id PeerID, msg Message) bool {
	b, ok := r.encode(msg)
	if !ok {
		return false
	}
	return r.deliver(msg.Type, b, func() []PeerID { return []PeerID{id} }) == 1
}

// Broadcast delivers msg to every peer and returns how many took it.
func (r *Registry) Broadcast(msg Message) int {
	b, ok := r.encode(msg)
	if !ok {
		return 0
	}
	return r.deliver(msg.Type, b, func() []PeerID {
		return slices.Collect(maps.Keys(r.peers))
	})
}

// BroadcastTopic delivers msg to the subscribers of one topic.
func (r *Registry) BroadcastTopic(t Topic, msg Message) int {
	b, ok := r.encode(msg)
	if !ok {
		return 0
	}
	return r.deliver(msg.Type, b, func() []PeerID {
		return slices.Collect(maps.Keys(r.topicPeers[t]))
	})
}

// Publish sends a reading to the subscribers of its room and of its
// domain, and to every peer with no subscriptions at all. No peer gets
// it twice.
func (r *Registry) Publish(rd reading.Reading) {
	msg := Update(rd)
	b, ok := r.encode(msg)
	if !ok {
		return
	}
	r.deliver(msg.Type, b, func() []PeerID {
		set := make(map[PeerID]struct{})
		for id := range r.topicPeers[RoomTopic(rd.Room)] {
			set[id] = struct{}{}
		}
		for id := range r.topicPeers[DomainTopic(rd.Domain)] {
			set[id] = struct{}{}
		}
		for id, topics := range r.peerTopics {
			if len(topics) == 0 {
				set[id] = struct{}{}
			}
		}
		return slices.Collect(maps.Keys(set))
	})
}

// Subscribe adds a peer to a topic. It reports false for unknown peers.
func (r *Registry) Subscribe(id PeerID, t Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics, ok := r.peerTopics[id]
	if !ok {
		return false
	}
	topics[t] = struct{}{}
	if r.topicPeers[t] == nil {
		r.topicPeers[t] = make(map[PeerID]struct{})
	}
	r.topicPeers[t][id] = struct{}{}
	return true
}

// Unsubscribe removes a peer from a topic. It reports false for unknown
// peers.
func (r *Registry) Unsubscribe(id PeerID, t Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics, ok := r.peerTopics[id]
	if !ok {
		return false
	}
	delete(topics, t)
	if subs := r.topicPeers[t]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.topicPeers, t)
		}
	}
	return true
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Connections: len(r.peers), Topics: make(map[string]int, len(r.topicPeers))}
	for t, subs := range r.topicPeers {
		s.Topics[string(t)] = len(subs)
	}
	return s
}

// Peers returns a snapshot of every peer, oldest first.
func (r *Registry) Peers() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for id, p := range r.peers {
		out = append(out, r.infoLocked(id, p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

func (r *Registry) infoLocked(id PeerID, p *peer) PeerInfo {
	info := PeerInfo{
		ID:         id,
		Created:    p.created,
		RemoteAddr: p.conn.RemoteAddr(),
		Rooms:      []string{},
		Domains:    []string{},
	}
	for t := range r.peerTopics[id] {
		if room, ok := t.Room(); ok {
			info.Rooms = append(info.Rooms, room)
		} else if d, ok := t.Domain(); ok {
			info.Domains = append(info.Domains, d)
		}
	}
	sort.Strings(info.Rooms)
	sort.Strings(info.Domains)
	return info
}

// Peer returns a snapshot of one peer.
func (r *Registry) Peer(id PeerID) (PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return r.infoLocked(id, p), true
}

// Close disconnects every peer.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := slices.Collect(maps.Keys(r.peers))
	r.mu.Unlock()
	for _, id := range ids {
		r.Disconnect(id)
	}
}
