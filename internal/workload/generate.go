package workload

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/dop251/goja"
	"github.com/me/cpusched/pkg/model"
)

type expression struct {
	field string
	src   string
	// def is used when src is empty.
	def string
}

// generatedFields lists the generator expressions in evaluation order.
func generatedFields(gen *model.GenerateSpec) []expression {
	return []expression{
		{field: "id", src: gen.ID, def: "i"},
		{field: "arrival", src: gen.Arrival, def: "0"},
		{field: "burst", src: gen.Burst},
		{field: "priority", src: gen.Priority, def: "0"},
	}
}

// Generate evaluates the generator expressions once per index and returns
// the resulting processes in index order. Every expression must produce an
// integral number.
func Generate(gen *model.GenerateSpec) ([]model.ProcessSpec, error) {
	if gen == nil || gen.Count <= 0 {
		return nil, nil
	}

	exprs := generatedFields(gen)
	programs := make([]*goja.Program, len(exprs))
	for k, e := range exprs {
		src := e.src
		if src == "" {
			src = e.def
		}
		prog, err := goja.Compile(e.field, src, true)
		if err != nil {
			return nil, fmt.Errorf("generate.%s: %w", e.field, err)
		}
		programs[k] = prog
	}

	vm := goja.New()
	vm.SetRandSource(rand.New(rand.NewSource(gen.Seed)).Float64)

	procs := make([]model.ProcessSpec, 0, gen.Count)
	for i := 0; i < gen.Count; i++ {
		if err := vm.Set("i", i); err != nil {
			return nil, fmt.Errorf("set i: %w", err)
		}

		var vals [4]int64
		for k, prog := range programs {
			v, err := evalInt(vm, prog)
			if err != nil {
				return nil, fmt.Errorf("generate.%s at i=%d: %w", exprs[k].field, i, err)
			}
			vals[k] = v
		}

		id, arrival, burst, priority := vals[0], vals[1], vals[2], vals[3]
		if id < 0 || id > math.MaxUint32 {
			return nil, fmt.Errorf("generate.id at i=%d: %d is not a valid process id", i, id)
		}
		if arrival < 0 {
			return nil, fmt.Errorf("generate.arrival at i=%d: must not be negative, got %d", i, arrival)
		}
		if burst < 0 {
			return nil, fmt.Errorf("generate.burst at i=%d: must not be negative, got %d", i, burst)
		}
		if priority < math.MinInt32 || priority > math.MaxInt32 {
			return nil, fmt.Errorf("generate.priority at i=%d: %d overflows int32", i, priority)
		}

		procs = append(procs, model.ProcessSpec{
			ID:       uint32(id),
			Arrival:  int(arrival),
			Burst:    int(burst),
			Priority: int32(priority),
		})
	}
	return procs, nil
}

func evalInt(vm *goja.Runtime, prog *goja.Program) (int64, error) {
	val, err := vm.RunProgram(prog)
	if err != nil {
		return 0, fmt.Errorf("JavaScript error: %w", err)
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return 0, fmt.Errorf("expression returned %s", val)
	}

	switch n := val.Export().(type) {
	case int64:
		return n, nil
	case float64:
		if math.IsNaN(n) || math.Abs(n) > 1<<53 || n != math.Trunc(n) {
			return 0, fmt.Errorf("expression returned %v, want an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expression returned %T, want a number", n)
	}
}
