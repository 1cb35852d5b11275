package sched

import (
	"fmt"
	"strings"
)

// Policy names a dispatching policy.
type Policy string

const (
	// PolicyFCFS dispatches in admission order.
	PolicyFCFS Policy = "fcfs"
	// PolicyPriority dispatches the lowest Priority value and never preempts.
	PolicyPriority Policy = "priority"
	// PolicyPreemptivePriority is PolicyPriority where a more urgent arrival
	// displaces the running record.
	PolicyPreemptivePriority Policy = "preemptive_priority"
	// PolicyRoundRobin runs records in admission order for one quantum each.
	PolicyRoundRobin Policy = "round_robin"
	// PolicySRT dispatches the shortest predicted burst and learns each
	// id's burst length by exponential smoothing.
	PolicySRT Policy = "srt"
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	return string(p)
}

// Preemptive returns true if admissions under p can displace the running record.
func (p Policy) Preemptive() bool {
	return p == PolicyPreemptivePriority || p == PolicySRT
}

var policyAliases = map[string]Policy{
	"fcfs":                    PolicyFCFS,
	"fifo":                    PolicyFCFS,
	"first_come_first_serve":  PolicyFCFS,
	"priority":                PolicyPriority,
	"preemptive_priority":     PolicyPreemptivePriority,
	"ppriority":               PolicyPreemptivePriority,
	"round_robin":             PolicyRoundRobin,
	"rr":                      PolicyRoundRobin,
	"srt":                     PolicySRT,
	"srtf":                    PolicySRT,
	"shortest_remaining_time": PolicySRT,
}

// ParsePolicy converts a policy name to a Policy. Dashes and case are ignored.
func ParsePolicy(s string) (Policy, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if p, ok := policyAliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown scheduling policy %q", s)
}

// Algorithm is a Policy plus its parameters. Quantum is only meaningful
// for round robin and Alpha only for SRT.
type Algorithm struct {
	Policy  Policy  `json:"policy" yaml:"policy"`
	Quantum int     `json:"quantum,omitempty" yaml:"quantum,omitempty"`
	Alpha   float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

// FirstComeFirstServe runs processes in admission order.
func FirstComeFirstServe() Algorithm { return Algorithm{Policy: PolicyFCFS} }

// Priority runs the most urgent ready process once the current one finishes.
func Priority() Algorithm { return Algorithm{Policy: PolicyPriority} }

// PreemptivePriority lets a more urgent newcomer displace the running process.
func PreemptivePriority() Algorithm { return Algorithm{Policy: PolicyPreemptivePriority} }

// RoundRobin gives each process quantum ticks before it goes to the back.
func RoundRobin(quantum int) Algorithm {
	return Algorithm{Policy: PolicyRoundRobin, Quantum: quantum}
}

// ShortestRemainingTime runs the process predicted to finish soonest and
// learns per-id burst lengths with smoothing factor alpha.
func ShortestRemainingTime(alpha float64) Algorithm {
	return Algorithm{Policy: PolicySRT, Alpha: alpha}
}

// Validate checks the parameters required by the policy.
func (a Algorithm) Validate() error {
	switch a.Policy {
	case PolicyFCFS, PolicyPriority, PolicyPreemptivePriority:
		return nil
	case PolicyRoundRobin:
		if a.Quantum <= 0 {
			return fmt.Errorf("round robin quantum must be positive, got %d", a.Quantum)
		}
		return nil
	case PolicySRT:
		if a.Alpha < 0 || a.Alpha > 1 {
			return fmt.Errorf("srt alpha must be within [0, 1], got %g", a.Alpha)
		}
		return nil
	default:
		return fmt.Errorf("unknown scheduling policy %q", a.Policy)
	}
}

func (a Algorithm) String() string {
	switch a.Policy {
	case PolicyRoundRobin:
		return fmt.Sprintf("%s(%d)", a.Policy, a.Quantum)
	case PolicySRT:
		return fmt.Sprintf("%s(%g)", a.Policy, a.Alpha)
	default:
		return string(a.Policy)
	}
}
