package model

// Workload is a simulation input document: the scheduler configuration,
// the processes to admit and an optional generator for synthetic ones.
type Workload struct {
	Name string `json:"name" yaml:"name"`
	// CPU is the processor the scheduler runs on. Nil defers to the
	// simulation config.
	CPU       *uint32       `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Scheduler SchedulerSpec `json:"scheduler" yaml:"scheduler"`
	Processes []ProcessSpec `json:"processes,omitempty" yaml:"processes,omitempty"`
	Generate  *GenerateSpec `json:"generate,omitempty" yaml:"generate,omitempty"`
}

// SchedulerSpec selects the dispatching policy. A non-empty Levels list
// builds a multilevel feedback queue and the top-level policy fields are
// ignored.
type SchedulerSpec struct {
	Policy  string      `json:"policy,omitempty" yaml:"policy,omitempty"`
	Quantum int         `json:"quantum,omitempty" yaml:"quantum,omitempty"`
	Alpha   float64     `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Levels  []LevelSpec `json:"levels,omitempty" yaml:"levels,omitempty"`
}

// LevelSpec configures one level of a multilevel feedback queue.
type LevelSpec struct {
	Policy  string  `json:"policy" yaml:"policy"`
	Quantum int     `json:"quantum,omitempty" yaml:"quantum,omitempty"`
	Alpha   float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

// Multilevel reports whether the scheduler section describes a multilevel queue.
func (s SchedulerSpec) Multilevel() bool {
	return len(s.Levels) > 0
}

// ProcessSpec is one process admission. Arrival is the tick on which the
// process is handed to the scheduler.
type ProcessSpec struct {
	ID       uint32 `json:"id" yaml:"id"`
	Arrival  int    `json:"arrival" yaml:"arrival"`
	Burst    int    `json:"burst" yaml:"burst"`
	Priority int32  `json:"priority,omitempty" yaml:"priority,omitempty"`
	// Affinity pins the process to one CPU. Nil or -1 means any CPU.
	Affinity *int32 `json:"affinity,omitempty" yaml:"affinity,omitempty"`
	Code     string `json:"code,omitempty" yaml:"code,omitempty"`
}

// GenerateSpec produces Count synthetic processes. Each field is a
// JavaScript expression evaluated with the index i bound to 0..Count-1.
// Seed fixes the sequence returned by Math.random.
type GenerateSpec struct {
	Count    int    `json:"count" yaml:"count"`
	Seed     int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Arrival  string `json:"arrival,omitempty" yaml:"arrival,omitempty"`
	Burst    string `json:"burst" yaml:"burst"`
	Priority string `json:"priority,omitempty" yaml:"priority,omitempty"`
}
