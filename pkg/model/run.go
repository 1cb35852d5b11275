package model

import "time"

// Run is one stored simulation of a Workload.
type Run struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Policy    string     `json:"policy"`
	State     RunState   `json:"state"`
	Workload  Workload   `json:"workload"`
	Report    *Report    `json:"report,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// Report summarises a finished simulation. All times are in ticks.
type Report struct {
	TotalTicks      int     `json:"total_ticks"`
	BusyTicks       int     `json:"busy_ticks"`
	IdleTicks       int     `json:"idle_ticks"`
	Utilization     float64 `json:"utilization"`
	Throughput      float64 `json:"throughput"`
	ContextSwitches int     `json:"context_switches"`
	Demotions       int     `json:"demotions"`
	// Shutdown is true when a dispatched shutdown process stopped the run.
	Shutdown bool `json:"shutdown"`

	Segments    []Segment          `json:"segments"`
	Processes   []ProcessResult    `json:"processes"`
	Rejections  []Rejection        `json:"rejections,omitempty"`
	Stats       Stats              `json:"stats"`
	Predictions map[uint32]float64 `json:"predictions,omitempty"`
}

// Completed returns the number of processes that ran to completion.
func (r *Report) Completed() int {
	n := 0
	for _, p := range r.Processes {
		if p.State == ProcessStateTerminated {
			n++
		}
	}
	return n
}

// Segment is a contiguous stretch of ticks during which one process held
// the CPU. End is exclusive.
type Segment struct {
	PID   uint32 `json:"pid"`
	Level int    `json:"level"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Len returns the number of ticks the segment covers.
func (s Segment) Len() int {
	return s.End - s.Start
}

// ProcessResult is the outcome of one admission. FirstRun and Completion
// are -1 for a process that never ran or never finished.
type ProcessResult struct {
	PID        uint32       `json:"pid"`
	Arrival    int          `json:"arrival"`
	Burst      int          `json:"burst"`
	Priority   int32        `json:"priority"`
	FirstRun   int          `json:"first_run"`
	Completion int          `json:"completion"`
	Turnaround int          `json:"turnaround"`
	Waiting    int          `json:"waiting"`
	Response   int          `json:"response"`
	Level      int          `json:"level"`
	State      ProcessState `json:"state"`
}

// Rejection records a process that was never admitted.
type Rejection struct {
	PID      uint32 `json:"pid"`
	Arrival  int    `json:"arrival"`
	Affinity int32  `json:"affinity"`
	Reason   string `json:"reason"`
}

// Stats aggregates per-process timings over completed processes.
type Stats struct {
	MeanTurnaround   float64 `json:"mean_turnaround"`
	StdDevTurnaround float64 `json:"stddev_turnaround"`
	MeanWaiting      float64 `json:"mean_waiting"`
	StdDevWaiting    float64 `json:"stddev_waiting"`
	MeanResponse     float64 `json:"mean_response"`
	StdDevResponse   float64 `json:"stddev_response"`
}
