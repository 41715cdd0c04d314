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

package appctx

import (
	"context"
	"homesim/pkg/logger"
	"os"
	"os/signal"
	"syscall"
)

// New returns a context derived from parent that is canceled when SIGINT or
// SIGTERM is received, plus a cancel func for manual shutdown. A second
// signal while shutting down exits the process immediately.
func New(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log := logger.New("SigHandler")
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			log.Info("Received signal: %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigs
		log.Warn("Received second signal: %s, exiting now", sig)
		os.Exit(1)
	}()

	return ctx, cancel
}
