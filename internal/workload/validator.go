package workload

import (
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/me/cpusched/pkg/model"
	"github.com/me/cpusched/pkg/sched"
)

// MaxGenerated caps the number of synthetic processes per document.
const MaxGenerated = 10_000

// Validator performs semantic validation on a parsed workload.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator with the given logger.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "validator")}
}

// Validate checks a workload document.
// Returns nil if valid, or an *model.APIError with FieldError details.
func (v *Validator) Validate(doc *model.Workload) *model.APIError {
	var errs []model.FieldError

	if doc.Name == "" {
		errs = append(errs, model.FieldError{Field: "name", Message: "name is required"})
	}
	errs = append(errs, v.validateScheduler(doc.Scheduler)...)
	errs = append(errs, v.validateProcesses(doc.Processes)...)
	errs = append(errs, v.validateGenerate(doc.Generate)...)

	if len(doc.Processes) == 0 && doc.Generate == nil {
		errs = append(errs, model.FieldError{
			Field:   "processes",
			Message: "workload must define processes or a generate block",
		})
	}

	if len(errs) == 0 {
		return nil
	}
	v.logger.Debug("workload rejected", "name", doc.Name, "errors", len(errs))
	return model.NewValidationError("workload validation failed", errs...)
}

func (v *Validator) validateScheduler(spec model.SchedulerSpec) []model.FieldError {
	if !spec.Multilevel() {
		_, errs := resolveAlgorithm("scheduler", spec.Policy, spec.Quantum, spec.Alpha)
		return errs
	}

	var errs []model.FieldError
	for i, level := range spec.Levels {
		prefix := fmt.Sprintf("scheduler.levels[%d]", i)
		_, levelErrs := resolveAlgorithm(prefix, level.Policy, level.Quantum, level.Alpha)
		errs = append(errs, levelErrs...)
	}
	return errs
}

func (v *Validator) validateProcesses(procs []model.ProcessSpec) []model.FieldError {
	var errs []model.FieldError
	for i, p := range procs {
		prefix := fmt.Sprintf("processes[%d]", i)
		if p.Burst < 0 {
			errs = append(errs, model.FieldError{
				Field:   prefix + ".burst",
				Message: fmt.Sprintf("burst must not be negative, got %d", p.Burst),
			})
		}
		if p.Arrival < 0 {
			errs = append(errs, model.FieldError{
				Field:   prefix + ".arrival",
				Message: fmt.Sprintf("arrival must not be negative, got %d", p.Arrival),
			})
		}
		if p.Affinity != nil && *p.Affinity < sched.NoAffinity {
			errs = append(errs, model.FieldError{
				Field:   prefix + ".affinity",
				Message: fmt.Sprintf("affinity must be a cpu index or -1, got %d", *p.Affinity),
			})
		}
		if _, err := parseCode(p.Code); err != nil {
			errs = append(errs, model.FieldError{Field: prefix + ".code", Message: err.Error()})
		}
	}
	return errs
}

func (v *Validator) validateGenerate(gen *model.GenerateSpec) []model.FieldError {
	if gen == nil {
		return nil
	}

	var errs []model.FieldError
	if gen.Count <= 0 || gen.Count > MaxGenerated {
		errs = append(errs, model.FieldError{
			Field:   "generate.count",
			Message: fmt.Sprintf("count must be within [1, %d], got %d", MaxGenerated, gen.Count),
		})
	}
	if gen.Burst == "" {
		errs = append(errs, model.FieldError{Field: "generate.burst", Message: "burst expression is required"})
	}

	for _, e := range generatedFields(gen) {
		if e.src == "" {
			continue
		}
		if _, err := goja.Compile(e.field, e.src, true); err != nil {
			errs = append(errs, model.FieldError{
				Field:   "generate." + e.field,
				Message: fmt.Sprintf("invalid expression: %v", err),
			})
		}
	}
	return errs
}

// resolveAlgorithm converts policy parameters into a validated Algorithm.
// Field errors are reported under prefix.
func resolveAlgorithm(prefix, policy string, quantum int, alpha float64) (sched.Algorithm, []model.FieldError) {
	if policy == "" {
		return sched.Algorithm{}, []model.FieldError{{Field: prefix + ".policy", Message: "policy is required"}}
	}
	p, err := sched.ParsePolicy(policy)
	if err != nil {
		return sched.Algorithm{}, []model.FieldError{{Field: prefix + ".policy", Message: err.Error()}}
	}

	algo := sched.Algorithm{Policy: p, Quantum: quantum, Alpha: alpha}
	if err := algo.Validate(); err != nil {
		field := prefix + ".policy"
		switch p {
		case sched.PolicyRoundRobin:
			field = prefix + ".quantum"
		case sched.PolicySRT:
			field = prefix + ".alpha"
		}
		return sched.Algorithm{}, []model.FieldError{{Field: field, Message: err.Error()}}
	}
	return algo, nil
}

func parseCode(s string) (sched.OpCode, error) {
	switch sched.OpCode(s) {
	case "", sched.Inert:
		return sched.Inert, nil
	case sched.Shutdown:
		return sched.Shutdown, nil
	default:
		return "", fmt.Errorf("unknown code %q: expected inert or shutdown", s)
	}
}
