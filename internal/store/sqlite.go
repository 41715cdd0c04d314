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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"homesim/pkg/logger"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RoomTag is the tag that SQLite indexes for room queries.
const RoomTag = "room_id"

const schema = `
CREATE TABLE IF NOT EXISTS points (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	measurement TEXT    NOT NULL,
	room        TEXT    NOT NULL DEFAULT '',
	tags        TEXT    NOT NULL,
	fields      TEXT    NOT NULL,
	ts          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_points_measurement_ts ON points(measurement, ts);
CREATE INDEX IF NOT EXISTS idx_points_room_ts ON points(room, ts);
`

// SQLite is a local Appender with time-range queries.
type SQLite struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: writes are serialized and :memory: stays one database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db, log: logger.New("SQLite")}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Write(ctx context.Context, p Point) error {
	return s.WriteBatch(ctx, []Point{p})
}

// WriteBatch inserts all points in one transaction.
func (s *SQLite) WriteBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (measurement, room, tags, fields, ts) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		fields, err := json.Marshal(p.Fields)
		if err != nil {
			return fmt.Errorf("encode fields of %s: %w", p.Measurement, err)
		}
		if _, err := stmt.ExecContext(ctx, p.Measurement, p.Tags[RoomTag], string(tags), string(fields), p.Time.UnixNano()); err != nil {
			return fmt.Errorf("insert %s: %w", p.Measurement, err)
		}
	}
	return tx.Commit()
}

// Query selects stored points. Zero fields do not filter.
type Query struct {
	Measurement string
	Room        string
	Since       time.Time
	Until       time.Time
	// newest points first when set; 0 means no limit
	Limit int
}

// Query returns matching points in time order, oldest first.
func (s *SQLite) Query(ctx context.Context, q Query) ([]Point, error) {
	var (
		where []string
		args  []any
	)
	if q.Measurement != "" {
		where = append(where, "measurement = ?")
		args = append(args, q.Measurement)
	}
	if q.Room != "" {
		where = append(where, "room = ?")
		args = append(args, q.Room)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.Until.UnixNano())
	}

	query := "SELECT measurement, tags, fields, ts FROM points"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var (
			p            Point
			tags, fields string
			ts           int64
		)
		if err := rows.Scan(&p.Measurement, &tags, &fields, &ts); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if err := errors.Join(
			json.Unmarshal([]byte(tags), &p.Tags),
			json.Unmarshal([]byte(fields), &p.Fields),
		); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		p.Time = time.Unix(0, ts)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}

// Prune deletes points older than cutoff and returns how many went.
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE ts < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.log.Debug("pruned %d points older than %s", n, cutoff.Format(time.RFC3339))
	return n, nil
}

// Count returns the number of stored points.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points").Scan(&n)
	return n, err
}
