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
	"homesim/pkg/logger"
	"time"
)

// Pruner deletes points older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention prunes old points on a fixed cadence.
type Retention struct {
	store    Pruner
	keep     time.Duration
	interval time.Duration
	clock    func() time.Time
	log      *logger.Logger
}

func NewRetention(store Pruner, keep, interval time.Duration) *Retention {
	return &Retention{
		store:    store,
		keep:     keep,
		interval: interval,
		clock:    time.Now,
		log:      logger.New("Retention"),
	}
}

func (r *Retention) Run(ctx context.Context) {
	r.log.Info("Running: keep %s, cleanup every %s", r.keep, r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Cleanup(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Stopped")
			return
		case <-ticker.C:
			r.Cleanup(ctx)
		}
	}
}

// Cleanup runs one prune pass.
func (r *Retention) Cleanup(ctx context.Context) int64 {
	n, err := r.store.Prune(ctx, r.clock().Add(-r.keep))
	if err != nil {
		r.log.Error("cleanup: %v", err)
		return 0
	}
	if n > 0 {
		r.log.Info("removed %d points older than %s", n, r.keep)
	}
	return n
}
