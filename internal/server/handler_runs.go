package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/cpusched/internal/simulator"
	"github.com/me/cpusched/internal/workload"
	"github.com/me/cpusched/pkg/model"
)

type dryRunResponse struct {
	Valid      bool   `json:"valid"`
	Name       string `json:"name"`
	Policy     string `json:"policy"`
	Processes  int    `json:"processes"`
	Horizon    int    `json:"horizon"`
	Multilevel bool   `json:"multilevel"`
}

type timelineResponse struct {
	RunID    string          `json:"run_id"`
	Segments []model.Segment `json:"segments"`
}

// decodeWorkload reads a workload from the request body. YAML content types
// go through the YAML parser, anything else is decoded as strict JSON.
func (s *Server) decodeWorkload(w http.ResponseWriter, r *http.Request) (*model.Workload, *workload.Workload, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWorkloadBytes))
	if err != nil {
		return nil, nil, model.NewValidationError("reading request body: " + err.Error())
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return s.loader.Load(data)
	}

	var doc model.Workload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, model.NewValidationError("Invalid JSON body: " + err.Error())
	}
	compiled, err := s.loader.LoadDocument(&doc)
	return &doc, compiled, err
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	doc, compiled, err := s.decodeWorkload(w, r)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}

	if r.URL.Query().Get("dry_run") == "true" {
		respondOK(w, reqID, dryRunResponse{
			Valid:      true,
			Name:       compiled.Name,
			Policy:     compiled.Policy(),
			Processes:  compiled.Len(),
			Horizon:    compiled.Horizon(),
			Multilevel: compiled.Multilevel,
		})
		return
	}

	now := time.Now().UTC()
	run := &model.Run{
		ID:        "run_" + uuid.New().String(),
		Name:      doc.Name,
		Policy:    compiled.Policy(),
		State:     model.RunStatePending,
		Workload:  *doc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	s.logger.Info("run created", "id", run.ID, "workload", run.Name, "policy", run.Policy, "processes", compiled.Len())

	if err := setRunState(run, model.RunStateRunning); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if err := s.store.UpdateRun(r.Context(), run); err != nil {
		respondInternal(w, reqID, err)
		return
	}

	sim := simulator.New(compiled, s.config.Simulation, s.root, simulator.WithMetrics(s.metrics))
	report, simErr := sim.Run(r.Context())
	run.Report = report

	final := model.RunStateCompleted
	if simErr != nil {
		final = model.RunStateFailed
		run.Error = simErr.Error()
		s.logger.Warn("run failed", "id", run.ID, "error", simErr)
	}
	if err := setRunState(run, final); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	ended := time.Now().UTC()
	run.UpdatedAt = ended
	run.EndedAt = &ended

	// The request may have been cancelled mid-simulation; the outcome is
	// still recorded.
	if err := s.store.UpdateRun(context.WithoutCancel(r.Context()), run); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondCreated(w, reqID, run)
}

// setRunState moves run to next if the lifecycle allows it.
func setRunState(run *model.Run, next model.RunState) error {
	if !run.State.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "Run",
			ID:     run.ID,
			From:   string(run.State),
			To:     string(next),
		}
	}
	run.State = next
	return nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, err := listOptions(r)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	respondList(w, reqID, runs, opts.Page(total))
}

// listOptions reads limit, offset and state from the query string.
func listOptions(r *http.Request) (model.ListOptions, error) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, model.NewValidationError("invalid query parameter",
				model.FieldError{Field: "limit", Message: fmt.Sprintf("not an integer: %q", v)})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, model.NewValidationError("invalid query parameter",
				model.FieldError{Field: "offset", Message: fmt.Sprintf("not an integer: %q", v)})
		}
		opts.Offset = n
	}
	if state := q.Get("state"); state != "" {
		switch model.RunState(state) {
		case model.RunStatePending, model.RunStateRunning, model.RunStateCompleted, model.RunStateFailed:
			opts.State = model.RunState(state)
		default:
			return opts, model.NewValidationError("invalid query parameter",
				model.FieldError{Field: "state", Message: fmt.Sprintf("unknown run state %q", state)})
		}
	}
	return opts, nil
}

// lookupRun loads the run named in the URL, writing a 404 or 500 and
// returning nil when it cannot.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) *model.Run {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return nil
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		respondOK(w, RequestIDFromContext(r.Context()), run)
	}
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}

	segments, err := s.store.ListSegments(r.Context(), run.ID)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, timelineResponse{RunID: run.ID, Segments: segments})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}

	if err := s.store.DeleteRun(r.Context(), run.ID); err != nil {
		respondInternal(w, reqID, err)
		return
	}
	s.logger.Info("run deleted", "id", run.ID)
	respondOK(w, reqID, map[string]any{"id": run.ID, "deleted": true})
}
