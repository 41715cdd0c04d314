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
	"context"
	"encoding/json"
	"fmt"
	"homesim/internal/app"
	"homesim/internal/config"
	"homesim/pkg/appctx"
	"homesim/pkg/logger"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

const (
	configPath = "var/config/homesim.json"
	logPath    = "var/logs/homesim.log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "homesim",
		Short: "Home sensor simulation engine",
		Long: `homesim simulates temperature, humidity and power sensors for a
multi-room home, streams the readings to websocket peers and stores
them for later queries.`,
		SilenceUsage: true,
	}

	rootDefault := os.Getenv("PROJECT_ROOT")
	if rootDefault == "" {
		rootDefault = "."
	}
	rootCmd.PersistentFlags().String("root", rootDefault, "Project root directory")
	rootCmd.PersistentFlags().String("config", configPath, "Config file, relative to root")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads the config named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	root, _ := cmd.Flags().GetString("root")
	path, _ := cmd.Flags().GetString("config")
	conf, err := config.Load(app.Resolve(root, path))
	if err != nil {
		return nil, err
	}
	conf.RootDir = root
	return conf, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "homesim version %s\n", version)
			}
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and its HTTP server",
		Long: `Run the simulation engine, the websocket registry and the HTTP
control surface until SIGINT or SIGTERM.

Examples:
  homesim serve                    # wait for POST /api/start
  homesim serve --autostart        # start simulating right away
  homesim serve --addr :9090 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				conf.Server.Addr = addr
			}
			if cmd.Flags().Changed("autostart") {
				conf.Coordinator.AutoStart, _ = cmd.Flags().GetBool("autostart")
			}
			if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
				conf.Simulation.Seed = seed
			}

			logFile := filepath.Join(conf.RootDir, logPath)
			if err := logger.Init(logFile); err != nil {
				return fmt.Errorf("init log %s: %w", logFile, err)
			}
			defer logger.Close()

			ctx, cancel := appctx.New(context.Background())
			defer cancel()

			a, err := app.New(ctx, conf)
			if err != nil {
				return err
			}
			if code := a.Run(ctx, cancel); code != 0 {
				return fmt.Errorf("exited with code %d", code)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().Bool("autostart", false, "Start every worker at launch")
	cmd.Flags().Uint64("seed", 0, "Simulation seed, 0 seeds from the clock")
	return cmd
}
