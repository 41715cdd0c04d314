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
	"errors"
)

// Fanout writes every point to each of its appenders. All appenders are
// tried; their errors are joined.
type Fanout []Appender

func (f Fanout) Write(ctx context.Context, p Point) error {
	var errs []error
	for _, a := range f {
		errs = append(errs, a.Write(ctx, p))
	}
	return errors.Join(errs...)
}

func (f Fanout) WriteBatch(ctx context.Context, points []Point) error {
	var errs []error
	for _, a := range f {
		errs = append(errs, a.WriteBatch(ctx, points))
	}
	return errors.Join(errs...)
}
