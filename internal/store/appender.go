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

// Package store persists simulation points. Every backend implements
// Appender; Batcher and Fanout compose them.
package store

import (
	"context"
	"time"
)

// Point is one tagged, timestamped record.
type Point struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	Time        time.Time         `json:"time"`
}

// Appender accepts points for persistence. Retrying transient failures
// is the Appender's business; callers only log returned errors.
type Appender interface {
	Write(ctx context.Context, p Point) error
	WriteBatch(ctx context.Context, points []Point) error
}

// Discard drops every point.
type Discard struct{}

func (Discard) Write(context.Context, Point) error        { return nil }
func (Discard) WriteBatch(context.Context, []Point) error { return nil }
