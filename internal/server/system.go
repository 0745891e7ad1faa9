package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemHealthResponse reports process and host vitals.
type systemHealthResponse struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Goroutines    int                `json:"goroutines"`
	CPUPercent    float64            `json:"cpu_percent"`
	MemPercent    float64            `json:"mem_percent"`
	DiskPercent   float64            `json:"disk_percent"`
	Databases     map[string]float64 `json:"database_size_mb"`
}

// handleSystemHealth returns host vitals and per-database sizes.
// CPU sampling uses a 100ms window to keep the endpoint fast.
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	resp := systemHealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		Databases:     make(map[string]float64),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		s.log.Warn().Err(err).Msg("Failed to read CPU usage")
	} else if len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to read memory usage")
	} else {
		resp.MemPercent = memStat.UsedPercent
	}

	if diskStat, err := disk.Usage(s.dataDir); err != nil {
		s.log.Warn().Err(err).Msg("Failed to read disk usage")
	} else {
		resp.DiskPercent = diskStat.UsedPercent
	}

	for _, db := range s.databases {
		var pageCount, pageSize int
		_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
		_ = db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
		resp.Databases[db.Name()] = float64(pageCount*pageSize) / 1024 / 1024
	}

	s.writeJSON(w, http.StatusOK, resp)
}
