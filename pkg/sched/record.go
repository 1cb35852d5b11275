package sched

// Record is the scheduling metadata for a Process resident in a Scheduler.
//
// A Record is owned by exactly one Scheduler at a time. A record returned
// from Schedule or handed between MultilevelQueue levels has already been
// dropped by the Scheduler that returned it.
type Record struct {
	Process

	// scheduleTime is the insertion clock stamp; earliest wins under
	// FCFS and round robin.
	scheduleTime uint64
	// lifetime is the remaining round robin quantum.
	lifetime int
	// estimate is the SRT prediction of the remaining runtime. It is a
	// prediction, not a counter, so it may go negative.
	estimate float64
}

func newRecord(p Process, clock uint64) *Record {
	return &Record{
		Process:      p,
		scheduleTime: clock,
		estimate:     InitialTau,
	}
}

// Tick accounts for one unit of execution.
func (r *Record) Tick() {
	if r.lifetime > 0 {
		r.lifetime--
	}
	if r.TimeUnits > 0 {
		r.TimeUnits--
	}
	r.estimate -= 1.0
}

// TickN calls Tick n times.
func (r *Record) TickN(n int) {
	for i := 0; i < n; i++ {
		r.Tick()
	}
}

// ScheduleTime returns the insertion clock stamp.
func (r *Record) ScheduleTime() uint64 { return r.scheduleTime }

// Lifetime returns the remaining round robin quantum.
func (r *Record) Lifetime() int { return r.lifetime }

// Estimate returns the live SRT prediction of the remaining runtime.
func (r *Record) Estimate() float64 { return r.estimate }

// Finished reports whether the burst has been fully consumed.
func (r *Record) Finished() bool { return r.TimeUnits == 0 }
