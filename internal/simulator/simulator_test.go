package simulator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/cpusched/internal/config"
	"github.com/me/cpusched/internal/metrics"
	"github.com/me/cpusched/internal/workload"
	"github.com/me/cpusched/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadWorkload compiles a file from the shared testdata directory.
func loadWorkload(t *testing.T, name string) *workload.Workload {
	t.Helper()
	path := filepath.Join("..", "..", "testdata", "workloads", name)
	_, w, err := workload.NewLoader(testLogger()).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(%s): %v", name, err)
	}
	return w
}

func compileDoc(t *testing.T, doc *model.Workload) *workload.Workload {
	t.Helper()
	w, err := workload.Compile(doc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return w
}

func runWorkload(t *testing.T, w *workload.Workload, opts ...Option) *model.Report {
	t.Helper()
	sim := New(w, config.DefaultSimulationConfig(), testLogger(), opts...)
	report, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return report
}

func assertSegments(t *testing.T, got, want []model.Segment) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("segments = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func resultFor(t *testing.T, r *model.Report, pid uint32) model.ProcessResult {
	t.Helper()
	for _, p := range r.Processes {
		if p.PID == pid {
			return p
		}
	}
	t.Fatalf("no result for pid %d", pid)
	return model.ProcessResult{}
}

func TestRun_FCFS(t *testing.T) {
	r := runWorkload(t, loadWorkload(t, "fcfs.yaml"))

	if r.TotalTicks != 9 || r.BusyTicks != 9 || r.IdleTicks != 0 {
		t.Errorf("ticks = %d/%d/%d, want 9/9/0", r.TotalTicks, r.BusyTicks, r.IdleTicks)
	}
	assertSegments(t, r.Segments, []model.Segment{
		{PID: 1, Level: 0, Start: 0, End: 5},
		{PID: 2, Level: 0, Start: 5, End: 8},
		{PID: 3, Level: 0, Start: 8, End: 9},
	})
	if r.ContextSwitches != 2 {
		t.Errorf("ContextSwitches = %d, want 2", r.ContextSwitches)
	}

	tests := []struct {
		pid                                     uint32
		firstRun, completion, turnaround, waits int
	}{
		{1, 0, 5, 5, 0},
		{2, 5, 8, 7, 4},
		{3, 8, 9, 7, 6},
	}
	for _, tt := range tests {
		p := resultFor(t, r, tt.pid)
		if p.FirstRun != tt.firstRun || p.Completion != tt.completion ||
			p.Turnaround != tt.turnaround || p.Waiting != tt.waits {
			t.Errorf("pid %d = %+v, want first=%d completion=%d turnaround=%d waiting=%d",
				tt.pid, p, tt.firstRun, tt.completion, tt.turnaround, tt.waits)
		}
		if p.State != model.ProcessStateTerminated {
			t.Errorf("pid %d state = %s, want TERMINATED", tt.pid, p.State)
		}
	}

	if r.Utilization != 1 {
		t.Errorf("Utilization = %v, want 1", r.Utilization)
	}
	if math.Abs(r.Stats.MeanTurnaround-19.0/3) > 1e-9 {
		t.Errorf("MeanTurnaround = %v, want %v", r.Stats.MeanTurnaround, 19.0/3)
	}
	if math.Abs(r.Stats.MeanWaiting-10.0/3) > 1e-9 {
		t.Errorf("MeanWaiting = %v, want %v", r.Stats.MeanWaiting, 10.0/3)
	}
	if r.Stats.StdDevTurnaround <= 0 {
		t.Errorf("StdDevTurnaround = %v, want positive", r.Stats.StdDevTurnaround)
	}
	if r.Predictions != nil {
		t.Errorf("Predictions = %v, want nil for fcfs", r.Predictions)
	}
}

func TestRun_MultilevelDemotionAndAffinity(t *testing.T) {
	r := runWorkload(t, loadWorkload(t, "mlfq.yaml"))

	assertSegments(t, r.Segments, []model.Segment{
		{PID: 1, Level: 0, Start: 0, End: 2},
		{PID: 2, Level: 0, Start: 2, End: 4},
		{PID: 1, Level: 1, Start: 4, End: 8},
		{PID: 2, Level: 1, Start: 8, End: 12},
	})
	if r.TotalTicks != 12 {
		t.Errorf("TotalTicks = %d, want 12", r.TotalTicks)
	}
	if r.Demotions != 2 {
		t.Errorf("Demotions = %d, want 2", r.Demotions)
	}
	if r.ContextSwitches != 3 {
		t.Errorf("ContextSwitches = %d, want 3", r.ContextSwitches)
	}

	if len(r.Rejections) != 1 || r.Rejections[0].PID != 3 || r.Rejections[0].Affinity != 1 {
		t.Fatalf("Rejections = %+v, want pid 3 pinned to cpu 1", r.Rejections)
	}
	if len(r.Processes) != 2 {
		t.Fatalf("Processes = %d, want 2 admitted", len(r.Processes))
	}

	p1 := resultFor(t, r, 1)
	if p1.Completion != 8 || p1.Waiting != 2 || p1.Level != 1 {
		t.Errorf("pid 1 = %+v", p1)
	}
	p2 := resultFor(t, r, 2)
	if p2.Completion != 12 || p2.Turnaround != 10 || p2.Response != 0 || p2.Level != 1 {
		t.Errorf("pid 2 = %+v", p2)
	}
}

func TestRun_WorkloadCPUOverridesConfig(t *testing.T) {
	w := loadWorkload(t, "mlfq.yaml") // cpu: 0
	cfg := config.DefaultSimulationConfig()
	cfg.CPU = 1

	r, err := New(w, cfg, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Rejections) != 1 {
		t.Errorf("Rejections = %+v, want pid 3 rejected on cpu 0", r.Rejections)
	}
}

func TestRun_ConfigCPUAdmitsPinnedProcess(t *testing.T) {
	affinity := int32(1)
	doc := &model.Workload{
		Name:      "pinned",
		Scheduler: model.SchedulerSpec{Policy: "fcfs"},
		Processes: []model.ProcessSpec{
			{ID: 1, Arrival: 0, Burst: 2},
			{ID: 2, Arrival: 0, Burst: 1, Affinity: &affinity},
		},
	}
	cfg := config.DefaultSimulationConfig()
	cfg.CPU = 1

	r, err := New(compileDoc(t, doc), cfg, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Rejections) != 0 {
		t.Errorf("Rejections = %+v, want none on cpu 1", r.Rejections)
	}
	if r.Completed() != 2 {
		t.Errorf("Completed = %d, want 2", r.Completed())
	}
}

func TestRun_SRTLearnsRecurringBursts(t *testing.T) {
	r := runWorkload(t, loadWorkload(t, "srt-generated.yaml"))

	if r.Completed() != 9 {
		t.Fatalf("Completed = %d, want 9", r.Completed())
	}
	if r.TotalTicks != 37 || r.BusyTicks != 27 || r.IdleTicks != 10 {
		t.Errorf("ticks = %d/%d/%d, want 37/27/10", r.TotalTicks, r.BusyTicks, r.IdleTicks)
	}
	if r.ContextSwitches != 4 {
		t.Errorf("ContextSwitches = %d, want 4", r.ContextSwitches)
	}

	want := map[uint32]float64{0: 2.125, 1: 3.875, 2: 5.625}
	for id, tau := range want {
		if got := r.Predictions[id]; got != tau {
			t.Errorf("prediction[%d] = %v, want %v", id, got, tau)
		}
	}

	// The third admission of id 0 preempts id 2 at tick 24.
	var preempted bool
	for i := 1; i < len(r.Segments); i++ {
		if r.Segments[i].PID == 0 && r.Segments[i].Start == 24 && r.Segments[i-1].PID == 2 {
			preempted = true
		}
	}
	if !preempted {
		t.Errorf("segments %+v: expected id 0 to preempt id 2 at tick 24", r.Segments)
	}
}

func TestRun_ShutdownStopsRun(t *testing.T) {
	r := runWorkload(t, loadWorkload(t, "shutdown.yaml"))

	if !r.Shutdown {
		t.Fatal("Shutdown = false, want true")
	}
	if r.TotalTicks != 3 {
		t.Errorf("TotalTicks = %d, want 3", r.TotalTicks)
	}
	if got := resultFor(t, r, 99); got.State != model.ProcessStateTerminated || got.Completion != 3 {
		t.Errorf("shutdown process = %+v", got)
	}
	if got := resultFor(t, r, 2); got.State != model.ProcessStateReady || got.Completion != -1 || got.FirstRun != -1 {
		t.Errorf("pid 2 = %+v, want unfinished and never run", got)
	}
}

func TestRun_ShutdownRejectsLaterArrivals(t *testing.T) {
	doc := &model.Workload{
		Name:      "early-stop",
		Scheduler: model.SchedulerSpec{Policy: "fcfs"},
		Processes: []model.ProcessSpec{
			{ID: 1, Arrival: 0, Burst: 2, Code: "shutdown"},
			{ID: 2, Arrival: 5, Burst: 1},
		},
	}
	r := runWorkload(t, compileDoc(t, doc))

	if !r.Shutdown || r.TotalTicks != 2 {
		t.Errorf("Shutdown = %v TotalTicks = %d, want true/2", r.Shutdown, r.TotalTicks)
	}
	if len(r.Rejections) != 1 || r.Rejections[0].PID != 2 {
		t.Errorf("Rejections = %+v, want pid 2", r.Rejections)
	}
}

func TestRun_ZeroBurstCompletesWithoutTicks(t *testing.T) {
	doc := &model.Workload{
		Name:      "dummy",
		Scheduler: model.SchedulerSpec{Policy: "fcfs"},
		Processes: []model.ProcessSpec{
			{ID: 5, Arrival: 0, Burst: 0},
			{ID: 6, Arrival: 0, Burst: 2},
		},
	}
	r := runWorkload(t, compileDoc(t, doc))

	if r.TotalTicks != 2 {
		t.Errorf("TotalTicks = %d, want 2", r.TotalTicks)
	}
	dummy := resultFor(t, r, 5)
	if dummy.State != model.ProcessStateTerminated || dummy.Completion != 0 || dummy.Turnaround != 0 {
		t.Errorf("dummy = %+v", dummy)
	}
	assertSegments(t, r.Segments, []model.Segment{{PID: 6, Level: 0, Start: 0, End: 2}})
}

func TestRun_RepeatedIDsMatchOldestAdmission(t *testing.T) {
	doc := &model.Workload{
		Name:      "repeat",
		Scheduler: model.SchedulerSpec{Policy: "fcfs"},
		Processes: []model.ProcessSpec{
			{ID: 1, Arrival: 0, Burst: 2},
			{ID: 1, Arrival: 0, Burst: 3},
		},
	}
	r := runWorkload(t, compileDoc(t, doc))

	if len(r.Processes) != 2 {
		t.Fatalf("Processes = %+v", r.Processes)
	}
	first, second := r.Processes[0], r.Processes[1]
	if first.Burst != 2 || first.Completion != 2 {
		t.Errorf("first admission = %+v, want completion 2", first)
	}
	if second.Burst != 3 || second.Completion != 5 || second.FirstRun != 2 {
		t.Errorf("second admission = %+v, want first run 2 completion 5", second)
	}
	if r.ContextSwitches != 1 {
		t.Errorf("ContextSwitches = %d, want 1", r.ContextSwitches)
	}
}

func TestRun_IdleGapBetweenArrivals(t *testing.T) {
	doc := &model.Workload{
		Name:      "gap",
		Scheduler: model.SchedulerSpec{Policy: "round_robin", Quantum: 2},
		Processes: []model.ProcessSpec{
			{ID: 1, Arrival: 0, Burst: 1},
			{ID: 2, Arrival: 4, Burst: 1},
		},
	}
	r := runWorkload(t, compileDoc(t, doc))

	if r.TotalTicks != 5 || r.IdleTicks != 3 {
		t.Errorf("ticks = %d total %d idle, want 5/3", r.TotalTicks, r.IdleTicks)
	}
	if r.ContextSwitches != 0 {
		t.Errorf("ContextSwitches = %d, want 0 across an idle gap", r.ContextSwitches)
	}
	if r.Utilization != 0.4 {
		t.Errorf("Utilization = %v, want 0.4", r.Utilization)
	}
}

func TestRun_TickLimit(t *testing.T) {
	cfg := config.DefaultSimulationConfig()
	cfg.MaxTicks = 4

	r, err := New(loadWorkload(t, "fcfs.yaml"), cfg, testLogger()).Run(context.Background())
	if !errors.Is(err, ErrTickLimit) {
		t.Fatalf("Run error = %v, want ErrTickLimit", err)
	}
	if r == nil || r.TotalTicks != 4 {
		t.Fatalf("partial report = %+v, want 4 ticks", r)
	}
	if got := resultFor(t, r, 1); got.State != model.ProcessStateRunning {
		t.Errorf("pid 1 state = %s, want RUNNING", got.State)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(loadWorkload(t, "fcfs.yaml"), config.DefaultSimulationConfig(), testLogger()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if r.TotalTicks != 0 {
		t.Errorf("TotalTicks = %d, want 0", r.TotalTicks)
	}
}

func TestTick_StepByStep(t *testing.T) {
	sim := New(loadWorkload(t, "fcfs.yaml"), config.DefaultSimulationConfig(), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := sim.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if sim.Now() != 3 {
		t.Errorf("Now = %d, want 3", sim.Now())
	}

	r := sim.Report()
	if got := resultFor(t, r, 2); got.State != model.ProcessStateReady {
		t.Errorf("pid 2 state = %s, want READY", got.State)
	}
	if len(r.Segments) != 1 || r.Segments[0].End != 3 {
		t.Errorf("open segment = %+v, want pid 1 up to tick 3", r.Segments)
	}

	for !sim.Done() {
		if err := sim.Tick(ctx); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if sim.Now() != 9 {
		t.Errorf("Now = %d, want 9", sim.Now())
	}
	if err := sim.Tick(ctx); err != nil || sim.Now() != 9 {
		t.Errorf("Tick after done advanced the clock: now=%d err=%v", sim.Now(), err)
	}
}

func TestRun_ReportsMetrics(t *testing.T) {
	c := metrics.New()
	runWorkload(t, loadWorkload(t, "mlfq.yaml"), WithMetrics(c))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`cpusched_runs_total{outcome="completed"} 1`,
		`cpusched_ticks_total{kind="busy"} 12`,
		`cpusched_dispatches_total{level="1"} 8`,
		`cpusched_completions_total 2`,
		`cpusched_demotions_total 2`,
		`cpusched_rejected_processes_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
