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
	"homesim/internal/app"
	"homesim/internal/config"
	"homesim/internal/simulation"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or check configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective app config as JSON",
			RunE: func(cmd *cobra.Command, args []string) error {
				conf, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(conf)
			},
		},
		&cobra.Command{
			Use:   "sensors",
			Short: "Print the effective sensor tables as YAML",
			Long: `Print the sensor tables in use. With no sensors_file configured
this is the built-in house, a starting point for a custom file.`,
			RunE: func(cmd *cobra.Command, args []string) error {
				sensors, err := loadSensors(cmd)
				if err != nil {
					return err
				}
				b, err := sensors.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the app config and sensor tables",
			RunE: func(cmd *cobra.Command, args []string) error {
				sensors, err := loadSensors(cmd)
				if err != nil {
					return err
				}
				for _, room := range sensors.Energy.Rooms {
					for _, d := range room.Devices {
						if _, err := simulation.LookupPattern(d.Pattern); err != nil {
							return fmt.Errorf("energy room %s device %s: %w", room.ID, d.ID, err)
						}
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
				return nil
			},
		},
	)
	return cmd
}

func loadSensors(cmd *cobra.Command) (*config.Sensors, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if conf.SensorsFile == "" {
		return config.DefaultSensors(), nil
	}
	return config.LoadSensors(app.Resolve(conf.RootDir, conf.SensorsFile))
}
