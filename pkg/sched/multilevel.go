package sched

// MultilevelQueue is a multilevel feedback queue.
//
// Level 0 has the highest dispatch priority. A process enters at level 0
// and moves one level down each time it is displaced or exhausts a round
// robin quantum; the last level keeps whatever reaches it. The process
// reported as current always belongs to the lowest-indexed level that has
// one.
//
//	queue := sched.NewMultilevelQueue().
//		WithLevel(sched.RoundRobin(2)).
//		WithLevel(sched.RoundRobin(4)).
//		WithLevel(sched.FirstComeFirstServe())
type MultilevelQueue struct {
	levels []*Scheduler
	sealed bool
}

// NewMultilevelQueue creates a queue with one level per algorithm.
func NewMultilevelQueue(levels ...Algorithm) *MultilevelQueue {
	q := &MultilevelQueue{}
	for _, algo := range levels {
		q.WithLevel(algo)
	}
	return q
}

// WithLevel appends a feedback-mode level below the existing ones.
// It panics with ErrLevelsSealed once a process has been scheduled.
func (q *MultilevelQueue) WithLevel(algo Algorithm) *MultilevelQueue {
	if q.sealed {
		panic(ErrLevelsSealed)
	}
	q.levels = append(q.levels, New(algo).WithFeedback())
	return q
}

// Levels returns the number of levels.
func (q *MultilevelQueue) Levels() int { return len(q.levels) }

// Level returns the scheduler backing level i.
func (q *MultilevelQueue) Level(i int) *Scheduler { return q.levels[i] }

// Len returns the number of resident records across all levels.
func (q *MultilevelQueue) Len() int {
	n := 0
	for _, level := range q.levels {
		n += level.Len()
	}
	return n
}

// Schedule admits p at level 0. A record displaced by the admission moves
// to the next level, where it may displace another record in turn; the
// cascade stops at the first level that accepts without displacing.
// It panics with ErrMisconfiguredQueue when the queue has no levels.
func (q *MultilevelQueue) Schedule(p Process) {
	if len(q.levels) == 0 {
		panic(ErrMisconfiguredQueue)
	}
	q.sealed = true
	q.scheduleAt(0, p)
}

// scheduleAt admits p at level and pushes every record the admission
// displaces one level further down, clamped at the last level.
func (q *MultilevelQueue) scheduleAt(level int, p Process) {
	last := len(q.levels) - 1
	for {
		displaced := q.levels[level].Schedule(p)
		if displaced == nil {
			return
		}
		p = displaced.Process
		level = min(level+1, last)
	}
}

// CurrentWithKey runs the retirement step on every level, demoting bumped
// records one level down, and then returns the current record of the
// highest-priority level that has one together with that level's index.
// A demoted record that preempts its new level cascades the displaced
// record down as Schedule does. Demotion keeps the remaining TimeUnits.
// ok is false when every level is empty.
func (q *MultilevelQueue) CurrentWithKey() (level int, rec *Record, ok bool) {
	last := len(q.levels) - 1
	for i, l := range q.levels {
		bumped := l.Retire()
		if bumped == nil {
			continue
		}
		q.scheduleAt(min(i+1, last), bumped.Process)
	}

	for i, l := range q.levels {
		if cur := l.Peek(); cur != nil {
			return i, cur, true
		}
	}
	return 0, nil, false
}

// Current returns the record CurrentWithKey reports, or nil.
func (q *MultilevelQueue) Current() *Record {
	_, rec, _ := q.CurrentWithKey()
	return rec
}

// CurrentUnchecked is Current but panics with ErrEmptySchedule when idle.
func (q *MultilevelQueue) CurrentUnchecked() *Record {
	rec := q.Current()
	if rec == nil {
		panic(ErrEmptySchedule)
	}
	return rec
}
