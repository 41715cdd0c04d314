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

package sysmon

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"

	"homesim/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a point-in-time view of host and process resources.
type Snapshot struct {
	GoVersion  string   `json:"go_version"`
	Goroutines int      `json:"goroutines"`
	CPU        CPU      `json:"cpu"`
	Memory     Memory   `json:"memory"`
	Disk       Disk     `json:"disk"`
	Errors     []string `json:"errors,omitempty"`
}

type CPU struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type Memory struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

type Disk struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

type Service struct {
	diskPath string
	log      *logger.Logger
}

// New returns a monitor that reports disk usage for diskPath.
func New(diskPath string) *Service {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Service{
		log:      logger.New("SysMonitor"),
		diskPath: diskPath,
	}
}

// Snapshot collects host stats. Individual probe failures are reported in
// Errors rather than failing the whole snapshot.
func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pcts, err := cpu.Percent(0, false); err != nil {
		snap.Errors = append(snap.Errors, "cpu: "+err.Error())
	} else if len(pcts) > 0 {
		snap.CPU.SystemPercent = pcts[0]
	}

	if vmem, err := mem.VirtualMemory(); err != nil {
		snap.Errors = append(snap.Errors, "mem: "+err.Error())
	} else {
		snap.Memory.SystemTotal = vmem.Total
		snap.Memory.SystemUsed = vmem.Used
		snap.Memory.SystemFree = vmem.Available
	}

	if total, free, used, err := DiskUsage(s.diskPath); err != nil {
		snap.Errors = append(snap.Errors, "disk: "+err.Error())
	} else {
		snap.Disk = Disk{Total: total, Used: used, Free: free}
	}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		snap.Errors = append(snap.Errors, "process: "+err.Error())
		return snap
	}
	if memInfo, err := p.MemoryInfo(); err == nil {
		snap.Memory.ProcessRSS = memInfo.RSS
	}
	if pct, err := p.CPUPercent(); err == nil {
		snap.CPU.ProcessPercent = pct
	}

	for _, e := range snap.Errors {
		s.log.Debug("probe failed: %s", e)
	}
	return snap
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Snapshot()); err != nil {
		s.log.Error("encode snapshot: %v", err)
	}
}
