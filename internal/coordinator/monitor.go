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

package coordinator

import (
	"context"
	"fmt"
	"homesim/internal/events"
	"homesim/internal/reading"
	"time"
)

const defaultMonitorInterval = 30 * time.Second

// monitorInterval follows the fastest worker unless configured.
func (c *Coordinator) monitorInterval() time.Duration {
	if d := c.opts.Config.MonitorInterval(); d > 0 {
		return d
	}
	var fastest time.Duration
	for _, w := range c.workers {
		if iv := w.Interval(); iv > 0 && (fastest == 0 || iv < fastest) {
			fastest = iv
		}
	}
	if fastest == 0 {
		return defaultMonitorInterval
	}
	return fastest
}

func (c *Coordinator) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := c.monitorInterval()
	c.log.Info("Monitoring every %s", interval)
	health := c.subscribeHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case h := <-health:
			c.onHealth(h)
		case <-ticker.C:
			c.monitorTick()
		}
	}
}

// subscribeHealth merges the health topics of every worker into one
// channel that lives as long as ctx.
func (c *Coordinator) subscribeHealth(ctx context.Context) <-chan events.WorkerHealth {
	out := make(chan events.WorkerHealth)
	if c.opts.Bus == nil {
		return out
	}
	for _, w := range c.workers {
		ch, _ := c.opts.Bus.Subscribe(ctx, events.WorkerHealthTopic(w.Name()), false)
		go func() {
			for ev := range ch {
				h, ok := ev.(events.WorkerHealth)
				if !ok {
					c.log.Error("unexpected health event %T", ev)
					continue
				}
				select {
				case out <- h:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return out
}

func (c *Coordinator) onHealth(h events.WorkerHealth) {
	if h.Healthy {
		c.log.Info("%s recovered", h.Worker)
		return
	}
	c.alert(Alert{
		Kind:     AlertWorkerUnhealthy,
		Severity: reading.Warning,
		Worker:   h.Worker,
		Message:  fmt.Sprintf("Worker %s failed %d consecutive ticks: %s", h.Worker, h.ConsecutiveErrors, h.LastError),
		Time:     h.Time,
	})
}

func (c *Coordinator) monitorTick() {
	now := c.opts.Clock()

	c.mu.Lock()
	c.stats.MonitorTicks++
	c.stats.LastTick = now
	n := c.stats.MonitorTicks
	c.mu.Unlock()

	c.checkLiveness(now)
	if n%int64(c.opts.Config.StatusEveryTicks) == 0 {
		c.broadcastStatus()
	}
}

// checkLiveness raises one alert per running to down transition. A
// worker is re-armed once it is seen running again. Workers being
// restarted on request are skipped and keep their armed state.
func (c *Coordinator) checkLiveness(now time.Time) {
	var down []string
	allRunning := true

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	for _, w := range c.workers {
		name := w.Name()
		if c.restarting[name] {
			continue
		}
		if w.IsRunning() {
			c.armed[name] = true
			continue
		}
		allRunning = false
		if c.armed[name] {
			c.armed[name] = false
			down = append(down, name)
		}
	}
	switch {
	case !allRunning:
		c.state = StateError
	case c.state == StateError:
		c.state = StateRunning
	}
	c.mu.Unlock()

	for _, name := range down {
		c.alert(Alert{
			Kind:     AlertWorkerDown,
			Severity: reading.Critical,
			Worker:   name,
			Message:  fmt.Sprintf("Worker %s is not running", name),
			Time:     now,
		})
	}
}
