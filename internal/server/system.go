package server

import (
	"net/http"
	"runtime"

	"inkframe/internal/sysmetrics"
)

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, s.orch.Status())
}

type systemInfo struct {
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryBytes   int64   `json:"memory_bytes"`
	DiskTotal     int64   `json:"disk_total_bytes"`
	DiskFree      int64   `json:"disk_free_bytes"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	TemperatureC  float64 `json:"temperature_c,omitempty"`
	PluginCount   int     `json:"plugin_count"`
	InstanceCount int     `json:"instance_count"`
	SlotCount     int     `json:"slot_count"`
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	total, free := sysmetrics.DiskUsage(s.dataDir)
	info := systemInfo{
		Version:       s.version,
		GoVersion:     runtime.Version(),
		CPUPercent:    sysmetrics.CPUPercent(),
		MemoryBytes:   sysmetrics.MemoryInuse(),
		DiskTotal:     total,
		DiskFree:      free,
		UptimeSeconds: int64(sysmetrics.Uptime().Seconds()),
		PluginCount:   len(s.registry.ListMetadata()),
		InstanceCount: s.instances.Count(),
		SlotCount:     s.schedule.Count(),
	}
	if temp, ok := sysmetrics.TemperatureC(); ok {
		info.TemperatureC = temp
	}
	respond(w, info)
}
