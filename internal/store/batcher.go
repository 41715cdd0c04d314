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
	"homesim/internal/metrics"
	"homesim/pkg/logger"
	"sync"
	"time"
)

// Batcher buffers points in memory and hands them to a backend every
// interval, or sooner once size points are waiting. Run must be going
// for anything to reach the backend.
type Batcher struct {
	name     string
	backend  Appender
	size     int
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger

	mu      sync.Mutex
	pending []Point
	full    chan struct{}
}

func NewBatcher(name string, backend Appender, size int, interval time.Duration, m *metrics.Metrics) *Batcher {
	return &Batcher{
		name:     name,
		backend:  backend,
		size:     max(size, 1),
		interval: interval,
		metrics:  m,
		log:      logger.New("Batcher." + name),
		full:     make(chan struct{}, 1),
	}
}

func (b *Batcher) Write(ctx context.Context, p Point) error {
	return b.WriteBatch(ctx, []Point{p})
}

// WriteBatch only queues; it never touches the backend.
func (b *Batcher) WriteBatch(_ context.Context, points []Point) error {
	b.mu.Lock()
	b.pending = append(b.pending, points...)
	n := len(b.pending)
	b.mu.Unlock()

	if n >= b.size {
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of queued points.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) Run(ctx context.Context) {
	b.log.Info("Running: flush every %s or at %d points", b.interval, b.size)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// last flush gets its own deadline since ctx is already done
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.Flush(flushCtx)
			cancel()
			b.log.Info("Stopped")
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.full:
			b.Flush(ctx)
		}
	}
}

// Flush sends everything queued to the backend. Failed points are
// dropped; retrying is the backend's job.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	points := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(points) == 0 {
		return
	}
	err := b.backend.WriteBatch(ctx, points)
	b.metrics.Points(b.name, len(points), err)
	if err != nil {
		b.log.Error("flush %d points: %v", len(points), err)
		return
	}
	b.log.Debug("flushed %d points", len(points))
}
