package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Metrics   string `json:"metrics"`
	MaxTicks  int    `json:"max_ticks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	storeStatus, metricsStatus := "unavailable", "disabled"
	if s.store != nil {
		storeStatus = "sqlite"
	}
	if s.metrics != nil {
		metricsStatus = "enabled"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     storeStatus,
		Metrics:   metricsStatus,
		MaxTicks:  s.config.Simulation.MaxTicks,
	})
}
