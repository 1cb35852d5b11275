package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/cpusched/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string) *model.Run {
	cpu := uint32(2)
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Run{
		ID:     id,
		Name:   "fcfs-basic",
		Policy: "fcfs",
		State:  model.RunStatePending,
		Workload: model.Workload{
			Name:      "fcfs-basic",
			CPU:       &cpu,
			Scheduler: model.SchedulerSpec{Policy: "fcfs"},
			Processes: []model.ProcessSpec{
				{ID: 1, Arrival: 0, Burst: 5},
				{ID: 2, Arrival: 1, Burst: 3},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleReport() *model.Report {
	return &model.Report{
		TotalTicks:      8,
		BusyTicks:       8,
		Utilization:     1,
		Throughput:      0.25,
		ContextSwitches: 1,
		Segments: []model.Segment{
			{PID: 1, Start: 0, End: 5},
			{PID: 2, Start: 5, End: 8},
		},
		Processes: []model.ProcessResult{
			{PID: 1, Burst: 5, Completion: 5, Turnaround: 5, State: model.ProcessStateTerminated},
			{PID: 2, Arrival: 1, Burst: 3, FirstRun: 5, Completion: 8, Turnaround: 7, Waiting: 4, Response: 4, State: model.ProcessStateTerminated},
		},
		Stats:       model.Stats{MeanTurnaround: 6, MeanWaiting: 2, MeanResponse: 2},
		Predictions: map[uint32]float64{1: 7.5, 2: 6.5},
	}
}

// --- Migration tests ---

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// --- Run CRUD tests ---

func TestCreateAndGetRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun("run_test-1")

	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil run")
	}
	if got.Name != run.Name || got.Policy != run.Policy {
		t.Errorf("got %q/%q, want %q/%q", got.Name, got.Policy, run.Name, run.Policy)
	}
	if got.State != model.RunStatePending {
		t.Errorf("state = %q, want PENDING", got.State)
	}
	if got.Workload.CPU == nil || *got.Workload.CPU != 2 || len(got.Workload.Processes) != 2 {
		t.Errorf("workload not preserved: %+v", got.Workload)
	}
	if got.Report != nil {
		t.Errorf("report = %+v, want nil", got.Report)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
	if got.EndedAt != nil {
		t.Errorf("ended_at = %v, want nil", got.EndedAt)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestCreateRun_DuplicateID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateRun(ctx, sampleRun("run_dup")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.CreateRun(ctx, sampleRun("run_dup")); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestUpdateRun_StoresReportAndSegments(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun("run_update")
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	ended := time.Now().UTC().Truncate(time.Millisecond)
	run.State = model.RunStateCompleted
	run.Report = sampleReport()
	run.UpdatedAt = ended
	run.EndedAt = &ended
	if err := st.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != model.RunStateCompleted {
		t.Errorf("state = %q, want COMPLETED", got.State)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, ended)
	}
	if got.Report == nil {
		t.Fatal("report not stored")
	}
	if got.Report.TotalTicks != 8 || got.Report.Completed() != 2 {
		t.Errorf("report = %+v", got.Report)
	}
	if got.Report.Predictions[1] != 7.5 {
		t.Errorf("predictions = %v", got.Report.Predictions)
	}
	if len(got.Report.Segments) != 2 || got.Report.Segments[1] != (model.Segment{PID: 2, Start: 5, End: 8}) {
		t.Errorf("segments = %+v", got.Report.Segments)
	}

	// Updating again replaces the timeline instead of appending to it.
	run.Report.Segments = run.Report.Segments[:1]
	if err := st.UpdateRun(ctx, run); err != nil {
		t.Fatalf("second update: %v", err)
	}
	segs, err := st.ListSegments(ctx, run.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 1 {
		t.Errorf("segments after update = %d, want 1", len(segs))
	}
}

func TestUpdateRun_NotFound(t *testing.T) {
	st := testStore(t)
	if err := st.UpdateRun(context.Background(), sampleRun("run_missing")); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestDeleteRun_CascadesSegments(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun("run_delete")
	run.State = model.RunStateCompleted
	run.Report = sampleReport()
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("run still present after delete")
	}
	segs, err := st.ListSegments(ctx, run.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("segments = %d, want 0 after delete", len(segs))
	}

	if err := st.DeleteRun(ctx, run.ID); err == nil {
		t.Error("expected error deleting missing run")
	}
}

func TestListRuns_PaginationAndState(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run_%d", i))
		run.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if i%2 == 0 {
			run.State = model.RunStateCompleted
			run.Report = sampleReport()
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(runs) != 2 {
		t.Fatalf("total = %d len = %d, want 5/2", total, len(runs))
	}
	if runs[0].ID != "run_4" {
		t.Errorf("first = %s, want newest run_4", runs[0].ID)
	}
	if runs[0].Report == nil || runs[0].Report.Segments != nil {
		t.Errorf("listed report should be present without segments: %+v", runs[0].Report)
	}

	runs, total, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, State: model.RunStateCompleted})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if total != 3 || len(runs) != 3 {
		t.Errorf("completed total = %d len = %d, want 3/3", total, len(runs))
	}

	runs, _, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run_0" {
		t.Errorf("offset page = %+v, want run_0", runs)
	}
}

func TestListSegments_UnknownRun(t *testing.T) {
	st := testStore(t)
	segs, err := st.ListSegments(context.Background(), "run_unknown")
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if segs == nil || len(segs) != 0 {
		t.Errorf("segments = %#v, want empty slice", segs)
	}
}

var _ Store = (*SQLiteStore)(nil)
