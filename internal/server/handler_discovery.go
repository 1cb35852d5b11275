package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Policies    []string       `json:"policies"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "cpusched API",
		Version:     "v1",
		Description: "Discrete-time CPU scheduling simulator with stored run history",
		Policies:    []string{"fcfs", "priority", "preemptive_priority", "round_robin", "srt"},
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET", "POST"}, "Simulation runs. POST takes a workload (JSON or YAML) and accepts ?dry_run=true for validation only"},
			{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Single run with its report"},
			{"/api/v1/runs/{id}/timeline", []string{"GET"}, "Gantt segments of a run"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
