package simulator

import (
	"github.com/me/cpusched/internal/workload"
	"github.com/me/cpusched/pkg/sched"
)

// Target is the scheduling structure a Simulator drives. Both a single
// Scheduler (through singleLevel) and a MultilevelQueue satisfy it.
type Target interface {
	Schedule(p sched.Process)
	CurrentWithKey() (level int, rec *sched.Record, ok bool)
	Levels() int
	Level(i int) *sched.Scheduler
	Len() int
}

// singleLevel presents a Scheduler as a one-level Target.
type singleLevel struct {
	s *sched.Scheduler
}

func (t singleLevel) Schedule(p sched.Process) { t.s.Schedule(p) }

func (t singleLevel) CurrentWithKey() (int, *sched.Record, bool) {
	rec := t.s.Current()
	return 0, rec, rec != nil
}

func (t singleLevel) Levels() int { return 1 }

func (t singleLevel) Level(int) *sched.Scheduler { return t.s }

func (t singleLevel) Len() int { return t.s.Len() }

// NewTarget builds the scheduling structure a workload asks for.
func NewTarget(w *workload.Workload) Target {
	if w.Multilevel {
		return sched.NewMultilevelQueue(w.Levels...)
	}
	return singleLevel{s: sched.New(w.Levels[0])}
}
