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
	"homesim/internal/reading"
	"slices"
)

var commands = []string{
	CmdSubscribeRoom, CmdUnsubscribeRoom,
	CmdSubscribeSensor, CmdUnsubscribeSensor,
	CmdPing, CmdGetStatus,
}

// commandLabel bounds the metric label set to the known commands.
func commandLabel(cmdType string) string {
	if slices.Contains(commands, cmdType) {
		return cmdType
	}
	return "unknown"
}

// HandleCommand parses and applies one inbound peer message. Every
// failure is answered with an error message to the sender only.
func (r *Registry) HandleCommand(id PeerID, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		r.log.Debug("bad command from %s: %v", id, err)
		r.reject(id, "Invalid JSON format")
		return
	}
	r.metrics.Command(commandLabel(cmd.Type))

	now := r.clock()
	switch cmd.Type {
	case CmdSubscribeRoom, CmdUnsubscribeRoom:
		if cmd.RoomID == "" {
			r.reject(id, "Room ID is required")
			return
		}
		t := RoomTopic(cmd.RoomID)
		if cmd.Type == CmdSubscribeRoom {
			r.confirm(id, r.Subscribe(id, t), TypeSubscriptionConfirmed, "room", cmd.RoomID)
		} else {
			r.confirm(id, r.Unsubscribe(id, t), TypeUnsubscriptionConfirmed, "room", cmd.RoomID)
		}

	case CmdSubscribeSensor, CmdUnsubscribeSensor:
		if cmd.SensorType == "" {
			r.reject(id, "Sensor type is required")
			return
		}
		d, err := reading.ParseDomain(cmd.SensorType)
		if err != nil {
			r.reject(id, "Unknown sensor type: "+cmd.SensorType)
			return
		}
		t := DomainTopic(d)
		if cmd.Type == CmdSubscribeSensor {
			r.confirm(id, r.Subscribe(id, t), TypeSubscriptionConfirmed, "sensor", string(d))
		} else {
			r.confirm(id, r.Unsubscribe(id, t), TypeUnsubscriptionConfirmed, "sensor", string(d))
		}

	case CmdPing:
		r.Send(id, Message{Type: TypePong, Timestamp: now})

	case CmdGetStatus:
		info, ok := r.Peer(id)
		if !ok {
			return
		}
		r.Send(id, Message{
			Type:             TypeStatus,
			Timestamp:        now,
			ClientID:         string(id),
			ConnectedClients: r.Stats().Connections,
			Subscriptions:    &Subscriptions{Rooms: info.Rooms, Sensors: info.Domains},
		})

	default:
		r.reject(id, "Unknown message type: "+cmd.Type)
	}
}

func (r *Registry) confirm(id PeerID, known bool, msgType, kind, target string) {
	if !known {
		return
	}
	r.Send(id, Message{Type: msgType, Timestamp: r.clock(), SubscriptionType: kind, ID: target})
}

func (r *Registry) reject(id PeerID, msg string) {
	r.Send(id, errorMessage(msg, r.clock()))
}
