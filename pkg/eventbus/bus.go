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

package eventbus

import (
	"context"
	"homesim/pkg/logger"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Bus implements an in-memory pub/sub where the most recent event
// is the only one kept per subscriber. It is meant for state-like
// events (health, latest snapshot) where a consumer only cares about
// the newest value, never for streams that must not lose items.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]chan Event
	last      map[Topic]Event
	idCounter atomic.Uint64
	closed    atomic.Bool
	log       *logger.Logger

	eventCount       atomic.Int64
	sendCount        atomic.Int64
	sendDropCount    atomic.Int64
	sendReplaceCount atomic.Int64
}

// Stats counts deliveries since the bus was created.
type Stats struct {
	Events   int64 `json:"events"`
	Sent     int64 `json:"sent"`
	Replaced int64 `json:"replaced"`
	Dropped  int64 `json:"dropped"`
}

func (b *Bus) Stats() Stats {
	return Stats{
		Events:   b.eventCount.Load(),
		Sent:     b.sendCount.Load(),
		Replaced: b.sendReplaceCount.Load(),
		Dropped:  b.sendDropCount.Load(),
	}
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
		log:  logger.New("EventBus"),
	}
}

// Publish publishes ev to topic and stores it as the topic's last event.
// Each subscriber channel holds one value; an unread older value is
// replaced so subscribers always see the most recent event.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}

	b.eventCount.Add(1)

	// sends are non-blocking, so they run under the lock; this keeps
	// Close and unsubscribe from closing a channel mid-send
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return
	}
	b.last[topic] = ev
	for _, ch := range b.subs[topic] {
		b.publishReplace(topic, ch, ev)
	}
}

// publishReplace tries to deliver ev to ch. If ch is full, it removes the existing item (if any)
// and then attempts to send ev. All operations are non-blocking to avoid global stalls.
func (b *Bus) publishReplace(topic Topic, ch chan Event, ev Event) {
	select {
	case ch <- ev:
		b.sendCount.Add(1)
		return
	default:
	}

	select {
	case <-ch:
		b.sendReplaceCount.Add(1)
	default:
	}
	select {
	case ch <- ev:
	default:
		b.log.Error("dropped event on %q: %+v", topic, ev)
		b.sendDropCount.Add(1)
		return
	}
	b.sendCount.Add(1)
}

// Subscribe subscribes to a topic and returns a receive-only channel and an unsubscribe func.
// If withLast is true and there is a stored "last" event, that event is delivered immediately.
// The subscription is removed and the channel closed when ctx is canceled or unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 1)
	id := b.idCounter.Add(1)

	b.mu.Lock()
	if b.subs == nil {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch

	var last Event
	var hasLast bool
	if withLast {
		last, hasLast = b.last[topic]
	}
	if hasLast {
		b.publishReplace(topic, ch, last)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var doneOnce sync.Once
	unsub := func() {
		doneOnce.Do(func() { close(done) })
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		m, ok := b.subs[topic]
		if !ok {
			// Close already closed the channel
			return
		}
		if _, mine := m[id]; !mine {
			return
		}
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, topic)
		}
		close(ch)
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Last is a typed GetLast. It reports false when the topic has no event
// or the stored event is not a T.
func Last[T any](b *Bus, topic Topic) (T, bool) {
	var zero T
	v, ok := b.GetLast(topic)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Close closes the bus and all subscriber channels. After Close, Publish is a no-op and Subscribe
// returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = nil
	b.last = nil
	b.mu.Unlock()
}
