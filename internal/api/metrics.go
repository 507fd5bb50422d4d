package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/mqtt-voice/internal/session"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Session       SessionMetrics `json:"session"`
	Events        EventMetrics   `json:"events"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// SessionMetrics summarises the broker session.
type SessionMetrics struct {
	State     session.State `json:"state"`
	Connected bool          `json:"connected"`
	Attempts  int           `json:"attempts"`

	// DroppedMessages counts inbound messages lost to a full inbox.
	DroppedMessages int64 `json:"dropped_messages"`
}

// EventMetrics contains notifier statistics.
type EventMetrics struct {
	Dropped int64 `json:"dropped"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.session.Status()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Session: SessionMetrics{
			State:     snap.State,
			Connected: snap.State.Connected(),
			Attempts:  snap.Attempts,

			DroppedMessages: snap.DroppedMessages,
		},
	}
	if s.events != nil {
		metrics.Events.Dropped = s.events.Dropped()
	}

	writeJSON(w, http.StatusOK, metrics)
}
