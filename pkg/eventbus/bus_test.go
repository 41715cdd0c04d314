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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishKeepsOnlyNewest(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(context.Background(), "t", false)
	defer unsub()

	b.Publish("t", 1)
	b.Publish("t", 2)
	b.Publish("t", 3)

	assert.Equal(t, 3, recv(t, ch))
	st := b.Stats()
	assert.Equal(t, int64(3), st.Events)
	assert.Equal(t, int64(2), st.Replaced)
}

func TestSubscribeWithLast(t *testing.T) {
	b := New()
	b.Publish("health", "down")

	ch, unsub := b.Subscribe(context.Background(), "health", true)
	defer unsub()
	assert.Equal(t, "down", recv(t, ch))

	v, ok := Last[string](b, "health")
	assert.True(t, ok)
	assert.Equal(t, "down", v)

	_, ok = Last[int](b, "health")
	assert.False(t, ok)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "t", false)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// publishing after unsubscribe must not panic
	b.Publish("t", 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(context.Background(), "t", false)
	b.Close()
	b.Close()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(context.Background(), "t", true)
	_, ok = <-late
	assert.False(t, ok)
	b.Publish("t", 1)
}
