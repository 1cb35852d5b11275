package workload

import (
	"strings"
	"testing"

	"github.com/me/cpusched/pkg/model"
)

func TestGenerate(t *testing.T) {
	procs, err := Generate(&model.GenerateSpec{
		Count:    4,
		ID:       "100 + i",
		Arrival:  "i * 2",
		Burst:    "1 + (i * 7) % 9",
		Priority: "i % 3",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []model.ProcessSpec{
		{ID: 100, Arrival: 0, Burst: 1, Priority: 0},
		{ID: 101, Arrival: 2, Burst: 8, Priority: 1},
		{ID: 102, Arrival: 4, Burst: 6, Priority: 2},
		{ID: 103, Arrival: 6, Burst: 4, Priority: 0},
	}
	if len(procs) != len(want) {
		t.Fatalf("len = %d, want %d", len(procs), len(want))
	}
	for i := range want {
		if procs[i].ID != want[i].ID || procs[i].Arrival != want[i].Arrival ||
			procs[i].Burst != want[i].Burst || procs[i].Priority != want[i].Priority {
			t.Errorf("procs[%d] = %+v, want %+v", i, procs[i], want[i])
		}
	}
}

func TestGenerate_Defaults(t *testing.T) {
	procs, err := Generate(&model.GenerateSpec{Count: 3, Burst: "5"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, p := range procs {
		if p.ID != uint32(i) || p.Arrival != 0 || p.Priority != 0 || p.Burst != 5 {
			t.Errorf("procs[%d] = %+v", i, p)
		}
	}
}

func TestGenerate_SeededRandomIsRepeatable(t *testing.T) {
	spec := &model.GenerateSpec{Count: 20, Seed: 42, Burst: "1 + Math.floor(Math.random() * 10)"}
	a, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(spec)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := range a {
		if a[i].Burst != b[i].Burst {
			t.Fatalf("burst[%d] differs between runs: %d vs %d", i, a[i].Burst, b[i].Burst)
		}
		if a[i].Burst < 1 || a[i].Burst > 10 {
			t.Errorf("burst[%d] = %d out of range", i, a[i].Burst)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec model.GenerateSpec
		want string
	}{
		{"fraction", model.GenerateSpec{Count: 1, Burst: "1.5"}, "want an integer"},
		{"string", model.GenerateSpec{Count: 1, Burst: "'long'"}, "want a number"},
		{"undefined", model.GenerateSpec{Count: 1, Burst: "undefined"}, "returned undefined"},
		{"throws", model.GenerateSpec{Count: 1, Burst: "nope.length"}, "JavaScript error"},
		{"negative burst", model.GenerateSpec{Count: 3, Burst: "1 - i"}, "generate.burst at i=2"},
		{"negative id", model.GenerateSpec{Count: 1, ID: "-1", Burst: "1"}, "not a valid process id"},
		{"syntax", model.GenerateSpec{Count: 1, Burst: "("}, "generate.burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(&tt.spec)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Generate error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestGenerate_Nil(t *testing.T) {
	procs, err := Generate(nil)
	if err != nil || procs != nil {
		t.Errorf("Generate(nil) = %v, %v", procs, err)
	}
}
