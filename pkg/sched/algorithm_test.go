package sched

import "testing"

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input string
		want  Policy
	}{
		{"fcfs", PolicyFCFS},
		{"FIFO", PolicyFCFS},
		{"first-come-first-serve", PolicyFCFS},
		{"priority", PolicyPriority},
		{"preemptive-priority", PolicyPreemptivePriority},
		{"PPriority", PolicyPreemptivePriority},
		{" rr ", PolicyRoundRobin},
		{"round_robin", PolicyRoundRobin},
		{"srtf", PolicySRT},
		{"Shortest-Remaining-Time", PolicySRT},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.input)
		if err != nil {
			t.Errorf("ParsePolicy(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParsePolicy_Unknown(t *testing.T) {
	for _, input := range []string{"", "lottery", "sjf"} {
		if _, err := ParsePolicy(input); err == nil {
			t.Errorf("ParsePolicy(%q) should fail", input)
		}
	}
}

func TestAlgorithm_Validate(t *testing.T) {
	tests := []struct {
		algo    Algorithm
		wantErr bool
	}{
		{FirstComeFirstServe(), false},
		{Priority(), false},
		{PreemptivePriority(), false},
		{RoundRobin(1), false},
		{RoundRobin(0), true},
		{RoundRobin(-4), true},
		{ShortestRemainingTime(0), false},
		{ShortestRemainingTime(1), false},
		{ShortestRemainingTime(1.5), true},
		{ShortestRemainingTime(-0.1), true},
		{Algorithm{Policy: "lottery"}, true},
	}
	for _, tt := range tests {
		err := tt.algo.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Validate() error = %v, wantErr %v", tt.algo, err, tt.wantErr)
		}
	}
}

func TestAlgorithm_String(t *testing.T) {
	tests := []struct {
		algo Algorithm
		want string
	}{
		{FirstComeFirstServe(), "fcfs"},
		{RoundRobin(3), "round_robin(3)"},
		{ShortestRemainingTime(0.5), "srt(0.5)"},
	}
	for _, tt := range tests {
		if got := tt.algo.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPolicy_Preemptive(t *testing.T) {
	tests := map[Policy]bool{
		PolicyFCFS:               false,
		PolicyPriority:           false,
		PolicyPreemptivePriority: true,
		PolicyRoundRobin:         false,
		PolicySRT:                true,
	}
	for p, want := range tests {
		if got := p.Preemptive(); got != want {
			t.Errorf("%s.Preemptive() = %v, want %v", p, got, want)
		}
	}
}

func TestNewProcess(t *testing.T) {
	p := NewProcess(3, 5, Inert)
	if p.TimeUnits != 5 || p.StaticTimeUnits != 5 {
		t.Errorf("time units = %d/%d, want 5/5", p.TimeUnits, p.StaticTimeUnits)
	}
	if p.HasAffinity() {
		t.Error("new process should have no affinity")
	}
	if got := p.WithAffinity(2).Affinity; got != 2 {
		t.Errorf("WithAffinity(2).Affinity = %d, want 2", got)
	}
	if p.Affinity != NoAffinity {
		t.Error("WithAffinity must not modify the receiver")
	}

	if neg := NewProcess(1, -3, Inert); neg.TimeUnits != 0 {
		t.Errorf("negative burst clamped to %d, want 0", neg.TimeUnits)
	}
}

func TestShutdownProcess(t *testing.T) {
	p := ShutdownProcess()
	if !p.IsShutdown() {
		t.Error("ShutdownProcess().IsShutdown() = false")
	}
	if p.TimeUnits != 0 {
		t.Errorf("TimeUnits = %d, want 0", p.TimeUnits)
	}
	if Spawn(4).IsShutdown() || Dummy(1).IsShutdown() {
		t.Error("inert processes report shutdown")
	}
}
