package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/metrics"
)

const timestampLayout = "2006-01-02 15:04:05"

// ToggleCPUResponse is returned by /api/toggle_cpu
type ToggleCPUResponse struct {
	CPULoad     bool `json:"vm_cpu_load"`
	WorkerCount int  `json:"worker_count"`
}

// ToggleHealthResponse is returned by /api/toggle_health
type ToggleHealthResponse struct {
	Healthy bool `json:"vm_healthy"`
}

// UptimeResponse is returned by /api/uptime
type UptimeResponse struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse is returned by /api/status and the load endpoints
type StatusResponse struct {
	Hostname    string          `json:"hostname"`
	Healthy     bool            `json:"vm_healthy"`
	Load        load.Status     `json:"load"`
	DefaultLoad load.LoadConfig `json:"default_load"`
	Uptime      string          `json:"uptime"`
	Timestamp   time.Time       `json:"timestamp"`
}

// VersionResponse structure
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// StartLoadRequest is the optional body of /api/load/start. Missing
// fields take the configured defaults.
type StartLoadRequest struct {
	IntervalSeconds    *int `json:"interval_seconds,omitempty"`
	UtilizationPercent *int `json:"utilization_percent,omitempty"`
}

type indexData struct {
	Hostname    string
	CPULoad     bool
	WorkerCount int
	Config      *load.LoadConfig
	Healthy     bool
	Timestamp   string
	Uptime      string
}

// FormatUptime renders d as "D days, H hours, M minutes, S seconds"
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	hours := total / 3600
	total %= 3600
	minutes := total / 60
	seconds := total % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes, %d seconds", days, hours, minutes, seconds)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.loads.Status()
	data := indexData{
		Hostname:    s.hostname,
		CPULoad:     st.IsActive,
		WorkerCount: st.WorkerCount,
		Config:      st.Config,
		Healthy:     s.health.Healthy(),
		Timestamp:   time.Now().Format(timestampLayout),
		Uptime:      FormatUptime(s.Uptime()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render index", logging.Err(err))
	}
}

// handleHealthz reports the simulated health: 200 OK or 500 Unhealthy
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health.Healthy() {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "OK")
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	io.WriteString(w, "Unhealthy")
}

func (s *Server) handleToggleCPU(w http.ResponseWriter, r *http.Request) {
	st, err := s.loads.Toggle(r.Context())
	if err != nil {
		s.writeLoadError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "cpu load toggled",
		logging.Bool("active", st.IsActive),
		logging.Int("workers", st.WorkerCount),
	)
	writeJSON(w, http.StatusOK, ToggleCPUResponse{CPULoad: st.IsActive, WorkerCount: st.WorkerCount})
}

func (s *Server) handleToggleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.health.Toggle()
	metrics.IncHealthToggles()

	s.logger.InfoContext(r.Context(), "health toggled", logging.Bool("healthy", healthy))
	writeJSON(w, http.StatusOK, ToggleHealthResponse{Healthy: healthy})
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	uptime := s.Uptime()
	writeJSON(w, http.StatusOK, UptimeResponse{
		Uptime:        FormatUptime(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleStartLoad(w http.ResponseWriter, r *http.Request) {
	var req StartLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	cfg := s.defaultLoad
	if req.IntervalSeconds != nil {
		cfg.IntervalSeconds = *req.IntervalSeconds
	}
	if req.UtilizationPercent != nil {
		cfg.UtilizationPercent = *req.UtilizationPercent
	}

	if _, err := s.loads.Start(r.Context(), cfg); err != nil {
		s.writeLoadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleStopLoad(w http.ResponseWriter, r *http.Request) {
	s.loads.Stop(r.Context())
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	})
}

func (s *Server) statusResponse() StatusResponse {
	return StatusResponse{
		Hostname:    s.hostname,
		Healthy:     s.health.Healthy(),
		Load:        s.loads.Status(),
		DefaultLoad: s.defaultLoad,
		Uptime:      FormatUptime(s.Uptime()),
		Timestamp:   time.Now(),
	}
}

// writeLoadError maps load errors to status codes
func (s *Server) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, load.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, load.ErrResourceExhausted), errors.Is(err, load.ErrManagerClosed):
		code = http.StatusServiceUnavailable
	}

	s.logger.WarnContext(r.Context(), "load request failed", logging.Int("status", code), logging.Err(err))
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
