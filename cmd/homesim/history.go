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

package main

import (
	"encoding/json"
	"fmt"
	"homesim/internal/api"
	"homesim/internal/app"
	"homesim/internal/store"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query stored readings",
		Long: `Print points from the local store, oldest first.

Examples:
  homesim history                                   # last hour, every measurement
  homesim history --measurement temperature --room kitchen
  homesim history --since 2025-06-21T00:00:00Z --limit 500 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			now := time.Now()
			q := store.Query{}
			q.Measurement, _ = cmd.Flags().GetString("measurement")
			q.Room, _ = cmd.Flags().GetString("room")
			q.Limit, _ = cmd.Flags().GetInt("limit")
			since, _ := cmd.Flags().GetString("since")
			until, _ := cmd.Flags().GetString("until")
			if q.Since, err = api.ParseTime(since, now); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if q.Until, err = api.ParseTime(until, now); err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			db, err := store.OpenSQLite(cmd.Context(), app.Resolve(conf.RootDir, conf.Storage.SQLitePath))
			if err != nil {
				return err
			}
			defer db.Close()

			points, err := db.Query(cmd.Context(), q)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if points == nil {
					points = []store.Point{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(points)
			}
			return printPoints(cmd.OutOrStdout(), points)
		},
	}
	cmd.Flags().String("measurement", "", "Measurement (temperature, humidity, energy_consumption, device_energy)")
	cmd.Flags().String("room", "", "Room id")
	cmd.Flags().String("since", "1h", "Start time, RFC 3339 or a duration before now")
	cmd.Flags().String("until", "", "End time, RFC 3339 or a duration before now")
	cmd.Flags().Int("limit", 100, "Newest points to return")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func printPoints(w io.Writer, points []store.Point) error {
	if len(points) == 0 {
		_, err := fmt.Fprintln(w, "No points found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMEASUREMENT\tROOM\tFIELDS")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.Time.Local().Format(time.DateTime), p.Measurement, p.Tags[store.RoomTag], formatFields(p.Fields))
	}
	return tw.Flush()
}

func formatFields(fields map[string]any) string {
	parts := make([]string, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
