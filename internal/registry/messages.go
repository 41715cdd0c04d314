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
	"homesim/internal/reading"
	"time"
)

// Outbound message types.
const (
	TypeConnectionConfirmed     = "connection_confirmed"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePong                    = "pong"
	TypeStatus                  = "status"
	TypeError                   = "error"
	TypeSystemStatus            = "system_status"
	TypeSystemAlert             = "system_alert"
	TypeRoomSummary             = "room_summary"
)

// Inbound command types.
const (
	CmdSubscribeRoom     = "subscribe_room"
	CmdUnsubscribeRoom   = "unsubscribe_room"
	CmdSubscribeSensor   = "subscribe_sensor"
	CmdUnsubscribeSensor = "unsubscribe_sensor"
	CmdPing              = "ping"
	CmdGetStatus         = "get_status"
)

// Message is the envelope of every outbound message. Only the fields
// relevant to Type are set.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`

	ClientID         string         `json:"client_id,omitempty"`
	SubscriptionType string         `json:"subscription_type,omitempty"`
	ID               string         `json:"id,omitempty"`
	Message          string         `json:"message,omitempty"`
	ConnectedClients int            `json:"connected_clients,omitempty"`
	Subscriptions    *Subscriptions `json:"subscriptions,omitempty"`
}

type Subscriptions struct {
	Rooms   []string `json:"rooms"`
	Sensors []string `json:"sensors"`
}

// Command is an inbound peer message.
type Command struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id,omitempty"`
	SensorType string `json:"sensor_type,omitempty"`
}

func UpdateType(d reading.Domain) string {
	return string(d) + "_update"
}

// Update wraps a reading for fan-out.
func Update(r reading.Reading) Message {
	return Message{Type: UpdateType(r.Domain), Timestamp: r.Timestamp, Data: r}
}

func SystemStatus(data any, now time.Time) Message {
	return Message{Type: TypeSystemStatus, Timestamp: now, Data: data}
}

func SystemAlert(data any, now time.Time) Message {
	return Message{Type: TypeSystemAlert, Timestamp: now, Data: data}
}

func RoomSummary(data any, now time.Time) Message {
	return Message{Type: TypeRoomSummary, Timestamp: now, Data: data}
}

func errorMessage(msg string, now time.Time) Message {
	return Message{Type: TypeError, Timestamp: now, Message: msg}
}
