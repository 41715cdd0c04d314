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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"homesim/pkg/eventbus"
	"os"
	"time"
)

type ServerConfig struct {
	Addr string `json:"addr"`
}

type SimulationConfig struct {
	TemperatureIntervalSeconds int `json:"temperature_interval_seconds"`
	HumidityIntervalSeconds    int `json:"humidity_interval_seconds"`
	EnergyIntervalSeconds      int `json:"energy_interval_seconds"`

	// sleep after a failed tick before the next one
	ErrorBackoffSeconds int `json:"error_backoff_seconds"`
	// consecutive failed ticks before a worker reports itself unhealthy
	UnhealthyAfterErrors int `json:"unhealthy_after_errors"`

	// 0 seeds from the clock
	Seed uint64 `json:"seed"`
}

type CoordinatorConfig struct {
	// 0 follows the fastest worker
	MonitorIntervalSeconds int  `json:"monitor_interval_seconds"`
	StatusEveryTicks       int  `json:"status_every_ticks"`
	RestartSettleMillis    int  `json:"restart_settle_millis"`
	AutoStart              bool `json:"auto_start"`
}

type RegistryConfig struct {
	SendQueueSize       int      `json:"send_queue_size"`
	WriteWaitSeconds    int      `json:"write_wait_seconds"`
	PingIntervalSeconds int      `json:"ping_interval_seconds"`
	MaxMessageBytes     int64    `json:"max_message_bytes"`
	AllowedOrigins      []string `json:"allowed_origins"`
}

type StorageConfig struct {
	SQLitePath           string `json:"sqlite_path"`
	RetentionHours       int    `json:"retention_hours"`
	CleanupIntervalHours int    `json:"cleanup_interval_hours"`
	BatchSize            int    `json:"batch_size"`
	BatchFlushSeconds    int    `json:"batch_flush_seconds"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

type Config struct {
	Server      ServerConfig      `json:"server"`
	Simulation  SimulationConfig  `json:"simulation"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Registry    RegistryConfig    `json:"registry"`
	Storage     StorageConfig     `json:"storage"`
	Kafka       KafkaConfig       `json:"kafka"`
	MQTT        MQTTConfig        `json:"mqtt"`

	// YAML sensor tables; empty uses DefaultSensors
	SensorsFile string `json:"sensors_file"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	RootDir  string        `json:"-"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads a JSON config file. A missing file is not an error: the
// defaults are returned instead.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	sim := &c.Simulation
	if sim.TemperatureIntervalSeconds == 0 {
		sim.TemperatureIntervalSeconds = 30
	}
	if sim.HumidityIntervalSeconds == 0 {
		sim.HumidityIntervalSeconds = 30
	}
	if sim.EnergyIntervalSeconds == 0 {
		sim.EnergyIntervalSeconds = 60
	}
	if sim.ErrorBackoffSeconds == 0 {
		sim.ErrorBackoffSeconds = 5
	}
	if sim.UnhealthyAfterErrors == 0 {
		sim.UnhealthyAfterErrors = 3
	}

	co := &c.Coordinator
	if co.StatusEveryTicks == 0 {
		co.StatusEveryTicks = 10
	}
	if co.RestartSettleMillis == 0 {
		co.RestartSettleMillis = 1000
	}

	reg := &c.Registry
	if reg.SendQueueSize == 0 {
		reg.SendQueueSize = 64
	}
	if reg.WriteWaitSeconds == 0 {
		reg.WriteWaitSeconds = 10
	}
	if reg.PingIntervalSeconds == 0 {
		reg.PingIntervalSeconds = 30
	}
	if reg.MaxMessageBytes == 0 {
		reg.MaxMessageBytes = 4096
	}

	st := &c.Storage
	if st.SQLitePath == "" {
		st.SQLitePath = "var/data/readings.db"
	}
	if st.RetentionHours == 0 {
		st.RetentionHours = 24
	}
	if st.CleanupIntervalHours == 0 {
		st.CleanupIntervalHours = 6
	}
	if st.BatchSize == 0 {
		st.BatchSize = 100
	}
	if st.BatchFlushSeconds == 0 {
		st.BatchFlushSeconds = 5
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "homesim.readings"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "homesim"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "homesim"
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (s SimulationConfig) ErrorBackoff() time.Duration { return seconds(s.ErrorBackoffSeconds) }

func (c CoordinatorConfig) MonitorInterval() time.Duration {
	return seconds(c.MonitorIntervalSeconds)
}

func (c CoordinatorConfig) RestartSettle() time.Duration {
	return time.Duration(c.RestartSettleMillis) * time.Millisecond
}

func (r RegistryConfig) WriteWait() time.Duration    { return seconds(r.WriteWaitSeconds) }
func (r RegistryConfig) PingInterval() time.Duration { return seconds(r.PingIntervalSeconds) }

func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

func (s StorageConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalHours) * time.Hour
}

func (s StorageConfig) BatchFlush() time.Duration { return seconds(s.BatchFlushSeconds) }
