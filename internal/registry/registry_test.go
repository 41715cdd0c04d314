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
	"encoding/json"
	"errors"
	"fmt"
	"homesim/internal/config"
	"homesim/internal/metrics"
	"homesim/internal/reading"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []Message
	fail   bool
	closed int
}

func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "test" }

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (c *fakeConn) last() Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.msgs = nil
	c.mu.Unlock()
}

func command(t *testing.T, cmd Command) []byte {
	t.Helper()
	b, err := json.Marshal(cmd)
	require.NoError(t, err)
	return b
}

func tempReading(room string) reading.Reading {
	return reading.Reading{
		Domain:    reading.Temperature,
		Room:      room,
		SensorID:  reading.SensorID(reading.Temperature, room),
		Value:     21.5,
		Unit:      reading.Temperature.Unit(),
		Timestamp: time.Now(),
	}
}

// assertConsistent checks that both topic indices describe the same
// relation.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, subs := range r.topicPeers {
		assert.NotEmpty(t, subs, "empty topic %s left behind", topic)
		for id := range subs {
			_, ok := r.peerTopics[id][topic]
			assert.True(t, ok, "topic %s lists %s but not the reverse", topic, id)
			_, ok = r.peers[id]
			assert.True(t, ok, "topic %s lists unknown peer %s", topic, id)
		}
	}
	for id, topics := range r.peerTopics {
		_, ok := r.peers[id]
		assert.True(t, ok, "orphan topic set for %s", id)
		for topic := range topics {
			_, ok := r.topicPeers[topic][id]
			assert.True(t, ok, "%s lists %s but not the reverse", id, topic)
		}
	}
}

func TestConnectSendsConfirmation(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	id := r.Connect(c)

	require.Equal(t, []string{TypeConnectionConfirmed}, c.types())
	assert.Equal(t, string(id), c.last().ClientID)
	assert.Equal(t, 1, r.Stats().Connections)
}

func TestPublishRoutesByRoom(t *testing.T) {
	r := New(nil)
	a, b := &fakeConn{}, &fakeConn{}
	ida := r.Connect(a)
	idb := r.Connect(b)
	r.HandleCommand(ida, command(t, Command{Type: CmdSubscribeRoom, RoomID: "kitchen"}))
	r.HandleCommand(idb, command(t, Command{Type: CmdSubscribeRoom, RoomID: "bedroom"}))
	a.reset()
	b.reset()

	r.Publish(tempReading("kitchen"))

	assert.Equal(t, []string{"temperature_update"}, a.types())
	assert.Empty(t, b.types())
}

func TestPublishDeliversOncePerPeer(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	id := r.Connect(c)
	r.HandleCommand(id, command(t, Command{Type: CmdSubscribeRoom, RoomID: "kitchen"}))
	r.HandleCommand(id, command(t, Command{Type: CmdSubscribeSensor, SensorType: "temperature"}))
	c.reset()

	r.Publish(tempReading("kitchen"))
	assert.Equal(t, []string{"temperature_update"}, c.types())
}

func TestPublishFirehoseForUnsubscribedPeers(t *testing.T) {
	r := New(nil)
	dash, other := &fakeConn{}, &fakeConn{}
	r.Connect(dash)
	id := r.Connect(other)
	r.HandleCommand(id, command(t, Command{Type: CmdSubscribeSensor, SensorType: "humidity"}))
	dash.reset()
	other.reset()

	r.Publish(tempReading("bedroom"))
	assert.Equal(t, []string{"temperature_update"}, dash.types())
	assert.Empty(t, other.types())
}

func TestDisconnectLeavesNoOrphans(t *testing.T) {
	r := New(nil)
	var ids []PeerID
	for range 5 {
		id := r.Connect(&fakeConn{})
		ids = append(ids, id)
		r.Subscribe(id, RoomTopic("kitchen"))
		r.Subscribe(id, DomainTopic(reading.Energy))
	}
	r.Subscribe(ids[0], RoomTopic("attic"))
	assertConsistent(t, r)

	var wg sync.WaitGroup
	for _, id := range ids[:3] {
		wg.Go(func() {
			r.Disconnect(id)
			r.Disconnect(id)
		})
	}
	wg.Wait()
	assertConsistent(t, r)

	st := r.Stats()
	assert.Equal(t, 2, st.Connections)
	assert.Equal(t, 2, st.Topics["room:kitchen"])
	assert.NotContains(t, st.Topics, "room:attic")

	for _, id := range ids[3:] {
		r.Disconnect(id)
	}
	assertConsistent(t, r)
	assert.Empty(t, r.Stats().Topics)
}

func TestDisconnectClosesOnce(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	id := r.Connect(c)
	r.Disconnect(id)
	r.Disconnect(id)
	assert.Equal(t, 1, c.closed)
}

func TestUnknownCommandRepliesOnce(t *testing.T) {
	r := New(nil)
	a, b := &fakeConn{}, &fakeConn{}
	id := r.Connect(a)
	r.Connect(b)
	a.reset()
	b.reset()

	r.HandleCommand(id, []byte(`{"type":"dance"}`))

	require.Equal(t, []string{TypeError}, a.types())
	assert.Contains(t, a.last().Message, "dance")
	assert.Empty(t, b.types())
}

func TestCommandMetricLabelsAreBounded(t *testing.T) {
	m := metrics.New()
	r := New(m)
	id := r.Connect(&fakeConn{})

	for i := range 50 {
		r.HandleCommand(id, []byte(fmt.Sprintf(`{"type":"junk-%d"}`, i)))
	}
	r.HandleCommand(id, []byte(`{"type":"ping"}`))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "homesim_registry_commands_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			got[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"unknown": 50, CmdPing: 1}, got)
}

func TestCommandErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":       `{"type":`,
		"missing room":    `{"type":"subscribe_room"}`,
		"missing sensor":  `{"type":"unsubscribe_sensor"}`,
		"unknown sensor":  `{"type":"subscribe_sensor","sensor_type":"pressure"}`,
		"unknown command": `{"type":""}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r := New(nil)
			c := &fakeConn{}
			id := r.Connect(c)
			c.reset()

			r.HandleCommand(id, []byte(raw))
			assert.Equal(t, []string{TypeError}, c.types())
			assert.NotEmpty(t, c.last().Message)
		})
	}
}

func TestSubscriptionCommands(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	id := r.Connect(c)

	r.HandleCommand(id, command(t, Command{Type: CmdSubscribeRoom, RoomID: "kitchen"}))
	m := c.last()
	assert.Equal(t, TypeSubscriptionConfirmed, m.Type)
	assert.Equal(t, "room", m.SubscriptionType)
	assert.Equal(t, "kitchen", m.ID)

	r.HandleCommand(id, command(t, Command{Type: CmdSubscribeSensor, SensorType: "energy"}))
	assert.Equal(t, "energy", c.last().ID)

	r.HandleCommand(id, command(t, Command{Type: CmdGetStatus}))
	m = c.last()
	require.Equal(t, TypeStatus, m.Type)
	assert.Equal(t, string(id), m.ClientID)
	assert.Equal(t, 1, m.ConnectedClients)
	require.NotNil(t, m.Subscriptions)
	assert.Equal(t, []string{"kitchen"}, m.Subscriptions.Rooms)
	assert.Equal(t, []string{"energy"}, m.Subscriptions.Sensors)

	r.HandleCommand(id, command(t, Command{Type: CmdUnsubscribeRoom, RoomID: "kitchen"}))
	assert.Equal(t, TypeUnsubscriptionConfirmed, c.last().Type)

	r.HandleCommand(id, command(t, Command{Type: CmdPing}))
	assert.Equal(t, TypePong, c.last().Type)

	info, ok := r.Peer(id)
	require.True(t, ok)
	assert.Empty(t, info.Rooms)
	assert.Equal(t, []string{"energy"}, info.Domains)
	assertConsistent(t, r)
}

func TestBroadcastPrunesFailedPeers(t *testing.T) {
	r := New(nil)
	good, bad := &fakeConn{}, &fakeConn{}
	r.Connect(good)
	badID := r.Connect(bad)
	r.Subscribe(badID, RoomTopic("kitchen"))
	bad.fail = true

	n := r.Broadcast(SystemStatus(map[string]string{"status": "running"}, time.Now()))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Stats().Connections)
	assert.Equal(t, 1, bad.closed)
	assertConsistent(t, r)

	_, ok := r.Peer(badID)
	assert.False(t, ok)
}

func TestBroadcastTopic(t *testing.T) {
	r := New(nil)
	a, b := &fakeConn{}, &fakeConn{}
	ida := r.Connect(a)
	r.Connect(b)
	r.Subscribe(ida, RoomTopic("kitchen"))
	a.reset()
	b.reset()

	n := r.BroadcastTopic(RoomTopic("kitchen"), RoomSummary(nil, time.Now()))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{TypeRoomSummary}, a.types())
	assert.Empty(t, b.types())
}

func TestSendFailureDisconnects(t *testing.T) {
	r := New(nil)
	c := &fakeConn{}
	id := r.Connect(c)
	c.fail = true
	assert.False(t, r.Send(id, Message{Type: TypePong}))
	assert.Equal(t, 0, r.Stats().Connections)
}

func TestPeersSnapshot(t *testing.T) {
	r := New(nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	first := r.Connect(&fakeConn{})
	second := r.Connect(&fakeConn{})

	peers := r.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, first, peers[0].ID)
	assert.Equal(t, second, peers[1].ID)
}

func testConfig() config.RegistryConfig {
	return config.RegistryConfig{
		SendQueueSize:       8,
		WriteWaitSeconds:    1,
		PingIntervalSeconds: 30,
		MaxMessageBytes:     4096,
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

func TestWebsocketRoundTrip(t *testing.T) {
	r := New(nil)
	srv := httptest.NewServer(NewHandler(r, testConfig()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	hello := readMessage(t, ws)
	require.Equal(t, TypeConnectionConfirmed, hello.Type)
	require.NotEmpty(t, hello.ClientID)

	require.NoError(t, ws.WriteJSON(Command{Type: CmdSubscribeRoom, RoomID: "kitchen"}))
	assert.Equal(t, TypeSubscriptionConfirmed, readMessage(t, ws).Type)

	r.Publish(tempReading("bedroom"))
	r.Publish(tempReading("kitchen"))
	m := readMessage(t, ws)
	assert.Equal(t, "temperature_update", m.Type)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, TypeError, readMessage(t, ws).Type)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return r.Stats().Connections == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	r := New(nil)
	srv := httptest.NewServer(NewHandler(r, testConfig()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, 0, r.Stats().Connections)
}

func TestWSConnQueueFull(t *testing.T) {
	c := &WSConn{queue: make(chan []byte, 1), done: make(chan struct{})}
	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrQueueFull)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("c")), ErrConnClosed)
}
