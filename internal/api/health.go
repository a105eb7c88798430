package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit,omitempty"`
	BuildTime string                 `json:"build_time,omitempty"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports dispatcher and journal state. The Benchling API
// is not probed; remote availability does not affect webhook acks.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"dispatcher": s.checkDispatcher(),
		"journal":    s.checkJournal(r.Context()),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, HealthCheckResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		Uptime:    time.Since(s.startTime).String(),
		Checks:    checks,
		System:    getSystemInfo(),
		RequestID: requestID,
	})
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := true
	message := "Ready"
	if s.dispatcher == nil {
		ready = false
		message = "Dispatcher not initialized"
	} else if c := s.checkJournal(r.Context()); c.Status == HealthStatusUnhealthy {
		ready = false
		message = c.Message
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"ready":      ready,
		"message":    message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    Version,
		"request_id": middleware.GetReqID(r.Context()),
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":      true,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    Version,
		"uptime":     time.Since(s.startTime).String(),
		"request_id": middleware.GetReqID(r.Context()),
	})
}

func (s *Server) checkDispatcher() HealthCheck {
	c := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     "Dispatcher ready",
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if s.dispatcher == nil {
		c.Status = HealthStatusUnhealthy
		c.Message = "Dispatcher not initialized"
	} else if s.remoteBase != "" {
		c.Message = "Dispatching to " + s.remoteBase
	}
	return c
}

func (s *Server) checkJournal(ctx context.Context) HealthCheck {
	start := time.Now()
	c := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Journal healthy",
	}
	if s.journal == nil {
		c.Message = "Journal disabled"
	} else {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.journal.Ping(ctx); err != nil {
			c.Status = HealthStatusUnhealthy
			c.Message = "Journal unreachable: " + err.Error()
		}
	}
	c.LastChecked = time.Now().UTC().Format(time.RFC3339)
	c.Duration = time.Since(start).String()
	return c
}

func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		MemoryAlloc:   m.Alloc,
		GCCycles:      m.NumGC,
	}
}
