package workload

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/me/cpusched/pkg/model"
	"github.com/me/cpusched/pkg/sched"
)

// Arrival is a process due for admission on Tick.
type Arrival struct {
	Tick    int
	Process sched.Process
}

// Workload is a validated document with generated processes expanded.
type Workload struct {
	Name string
	// CPU is nil when the document leaves the processor to the runner.
	CPU *uint32
	// Levels holds one algorithm for a single-level scheduler, or one per
	// level when Multilevel is set.
	Levels     []sched.Algorithm
	Multilevel bool

	arrivals []Arrival
}

// Compile resolves a validated document into a Workload. Explicit processes
// come before generated ones; ties on arrival keep that order.
func Compile(doc *model.Workload) (*Workload, error) {
	w := &Workload{Name: doc.Name, CPU: doc.CPU, Multilevel: doc.Scheduler.Multilevel()}

	if w.Multilevel {
		for i, level := range doc.Scheduler.Levels {
			algo, errs := resolveAlgorithm(fmt.Sprintf("scheduler.levels[%d]", i), level.Policy, level.Quantum, level.Alpha)
			if errs != nil {
				return nil, model.NewValidationError("workload validation failed", errs...)
			}
			w.Levels = append(w.Levels, algo)
		}
	} else {
		spec := doc.Scheduler
		algo, errs := resolveAlgorithm("scheduler", spec.Policy, spec.Quantum, spec.Alpha)
		if errs != nil {
			return nil, model.NewValidationError("workload validation failed", errs...)
		}
		w.Levels = []sched.Algorithm{algo}
	}

	generated, err := Generate(doc.Generate)
	if err != nil {
		return nil, model.NewValidationError("workload generation failed",
			model.FieldError{Field: "generate", Message: err.Error()})
	}

	specs := make([]model.ProcessSpec, 0, len(doc.Processes)+len(generated))
	specs = append(specs, doc.Processes...)
	specs = append(specs, generated...)
	if len(specs) == 0 {
		return nil, model.NewValidationError("workload validation failed",
			model.FieldError{Field: "processes", Message: "workload has no processes"})
	}

	for _, ps := range specs {
		p, err := toProcess(ps)
		if err != nil {
			return nil, model.NewValidationError("workload validation failed",
				model.FieldError{Field: "processes", Message: err.Error()})
		}
		w.arrivals = append(w.arrivals, Arrival{Tick: ps.Arrival, Process: p})
	}
	slices.SortStableFunc(w.arrivals, func(a, b Arrival) int {
		return a.Tick - b.Tick
	})
	return w, nil
}

func toProcess(ps model.ProcessSpec) (sched.Process, error) {
	code, err := parseCode(ps.Code)
	if err != nil {
		return sched.Process{}, fmt.Errorf("process %d: %w", ps.ID, err)
	}
	p := sched.NewProcess(ps.ID, ps.Burst, code).WithPriority(ps.Priority)
	if ps.Affinity != nil && *ps.Affinity >= 0 {
		p = p.WithAffinity(uint32(*ps.Affinity))
	}
	return p, nil
}

// Arrivals returns the admissions ordered by tick. The slice is a copy.
func (w *Workload) Arrivals() []Arrival {
	return slices.Clone(w.arrivals)
}

// Len returns the number of processes in the workload.
func (w *Workload) Len() int {
	return len(w.arrivals)
}

// Horizon returns the tick of the last arrival.
func (w *Workload) Horizon() int {
	if len(w.arrivals) == 0 {
		return 0
	}
	return w.arrivals[len(w.arrivals)-1].Tick
}

// Policy describes the scheduler configuration, e.g. "srt(0.5)" or
// "mlfq[round_robin(2) round_robin(4) fcfs]".
func (w *Workload) Policy() string {
	if !w.Multilevel {
		return w.Levels[0].String()
	}
	names := make([]string, len(w.Levels))
	for i, algo := range w.Levels {
		names[i] = algo.String()
	}
	return "mlfq[" + strings.Join(names, " ") + "]"
}

// Loader chains parsing, validation and compilation.
type Loader struct {
	parser    *Parser
	validator *Validator
}

// NewLoader creates a Loader with the given logger.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{parser: New(logger), validator: NewValidator(logger)}
}

// Load parses, validates and compiles data. It returns the decoded document
// alongside the compiled workload. Validation failures are *model.APIError.
func (l *Loader) Load(data []byte) (*model.Workload, *Workload, error) {
	doc, err := l.parser.Parse(data)
	if err != nil {
		return nil, nil, model.NewValidationError(err.Error())
	}
	return l.compile(doc)
}

// LoadFile is Load for the workload document at path.
func (l *Loader) LoadFile(path string) (*model.Workload, *Workload, error) {
	doc, err := l.parser.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	return l.compile(doc)
}

// LoadDocument validates and compiles an already decoded document.
func (l *Loader) LoadDocument(doc *model.Workload) (*Workload, error) {
	_, w, err := l.compile(doc)
	return w, err
}

func (l *Loader) compile(doc *model.Workload) (*model.Workload, *Workload, error) {
	if apiErr := l.validator.Validate(doc); apiErr != nil {
		return doc, nil, apiErr
	}
	w, err := Compile(doc)
	if err != nil {
		return doc, nil, err
	}
	return doc, w, nil
}
