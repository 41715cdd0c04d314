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

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes points as JSON messages keyed by room, so one room's
// points stay ordered on one partition.
type Kafka struct {
	w     messageWriter
	topic string
	log   *logger.Logger
}

func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafka(w, cfg.Topic), nil
}

func newKafka(w messageWriter, topic string) *Kafka {
	return &Kafka{w: w, topic: topic, log: logger.New("Kafka")}
}

func (k *Kafka) Write(ctx context.Context, p Point) error {
	return k.WriteBatch(ctx, []Point{p})
}

func (k *Kafka) WriteBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(points))
	for _, p := range points {
		value, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.Measurement, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(p.Tags[RoomTag]),
			Value: value,
			Time:  p.Time,
			Headers: []kafka.Header{
				{Key: "measurement", Value: []byte(p.Measurement)},
			},
		})
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.topic, err)
	}
	k.log.Debug("wrote %d points to %s", len(msgs), k.topic)
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
