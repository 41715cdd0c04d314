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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"homesim/internal/config"
	"homesim/pkg/logger"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 5 * time.Second

// MQTT publishes each point as JSON to <prefix>/<measurement>/<room>.
type MQTT struct {
	client mqtt.Client
	prefix string
	qos    byte
	log    *logger.Logger
}

// NewMQTT connects to the broker. The client reconnects on its own
// after the first successful connection.
func NewMQTT(ctx context.Context, cfg config.MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker must not be empty")
	}
	log := logger.New("MQTT")
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("connection lost: %v", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("connected to %s", cfg.Broker)
		})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTT(client, cfg.TopicPrefix, cfg.QoS), nil
}

func newMQTT(client mqtt.Client, prefix string, qos byte) *MQTT {
	return &MQTT{client: client, prefix: prefix, qos: qos, log: logger.New("MQTT")}
}

func (m *MQTT) Topic(p Point) string {
	room := p.Tags[RoomTag]
	if room == "" {
		room = "house"
	}
	return m.prefix + "/" + p.Measurement + "/" + room
}

func (m *MQTT) Write(ctx context.Context, p Point) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Measurement, err)
	}
	topic := m.Topic(p)
	if err := wait(ctx, m.client.Publish(topic, m.qos, false, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// WriteBatch publishes every point and joins the failures.
func (m *MQTT) WriteBatch(ctx context.Context, points []Point) error {
	var errs []error
	for _, p := range points {
		if err := m.Write(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttTimeout):
		return errors.New("timed out")
	}
}
