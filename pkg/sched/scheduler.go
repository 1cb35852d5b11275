package sched

import (
	"cmp"
	"fmt"
	"maps"
)

// InitialTau is the prediction given to an id the scheduler has never seen.
const InitialTau = 10.0

// Scheduler is a single-level dispatcher running one Algorithm.
//
// At most one record is current; every other resident record waits in the
// ready set. In feedback mode records that are displaced by an admission or
// whose round robin quantum expires are handed back to the caller instead
// of being requeued, which is how MultilevelQueue demotes them.
type Scheduler struct {
	algo     Algorithm
	feedback bool

	current *Record
	ready   []*Record

	// clock advances every time a record joins the ready set.
	clock uint64

	// predictions maps process id to the learned SRT burst length. Entries
	// outlive admissions so recurring ids keep their history.
	predictions map[uint32]float64
}

// New creates an empty scheduler.
func New(algo Algorithm) *Scheduler {
	return &Scheduler{
		algo:        algo,
		predictions: make(map[uint32]float64),
	}
}

// WithFeedback switches the scheduler into feedback mode.
func (s *Scheduler) WithFeedback() *Scheduler {
	s.feedback = true
	return s
}

// Algorithm returns the configured algorithm.
func (s *Scheduler) Algorithm() Algorithm { return s.algo }

// Feedback reports whether the scheduler is in feedback mode.
func (s *Scheduler) Feedback() bool { return s.feedback }

// Schedule admits p.
//
// Under the preemptive policies p may displace the current record. The
// displaced record goes to the back of the ready set, or in feedback mode
// is returned to the caller, which becomes its sole owner. Every other
// path returns nil.
func (s *Scheduler) Schedule(p Process) *Record {
	return s.admit(newRecord(p, s.clock))
}

func (s *Scheduler) admit(rec *Record) *Record {
	if _, ok := s.predictions[rec.ID]; !ok {
		s.predictions[rec.ID] = InitialTau
	}
	rec.scheduleTime = s.clock

	if s.current == nil {
		s.install(rec)
		return nil
	}

	if s.preempts(rec) {
		displaced := s.current
		s.install(rec)
		if s.feedback {
			return displaced
		}
		s.ready = append(s.ready, displaced)
		return nil
	}

	s.ready = append(s.ready, rec)
	s.clock++
	return nil
}

// preempts reports whether rec should displace the current record.
func (s *Scheduler) preempts(rec *Record) bool {
	switch s.algo.Policy {
	case PolicyPreemptivePriority:
		return rec.Priority < s.current.Priority
	case PolicySRT:
		return s.current.estimate > s.prediction(rec.ID)
	default:
		return false
	}
}

// install makes rec current, or clears current when rec is nil.
func (s *Scheduler) install(rec *Record) {
	if rec == nil {
		s.current = nil
		return
	}
	rec.estimate = s.prediction(rec.ID)
	if s.algo.Policy == PolicyRoundRobin {
		rec.lifetime = s.algo.Quantum
	}
	s.current = rec
}

func (s *Scheduler) prediction(id uint32) float64 {
	tau, ok := s.predictions[id]
	if !ok {
		panic(fmt.Errorf("%w: process %d", ErrMissingPrediction, id))
	}
	return tau
}

// Retire advances the scheduler past a current record that has finished its
// burst or, under round robin, exhausted its quantum.
//
// A finished record is dropped and, under SRT, its id's prediction is
// smoothed toward the burst it actually needed. An expired round robin
// record is requeued at the back, or in feedback mode returned as the
// bumped record. Otherwise Retire does nothing and returns nil.
func (s *Scheduler) Retire() *Record {
	cur := s.current
	if cur == nil {
		return nil
	}

	switch {
	case cur.TimeUnits == 0:
		next := s.next()
		if s.algo.Policy == PolicySRT {
			s.learn(cur)
		}
		s.install(next)
	case s.algo.Policy == PolicyRoundRobin && cur.lifetime <= 0:
		s.current = nil
		s.install(s.next())
		if s.feedback {
			return cur
		}
		s.admit(cur)
	}
	return nil
}

// learn applies exponential smoothing to the prediction for rec's id.
func (s *Scheduler) learn(rec *Record) {
	alpha := s.algo.Alpha
	tau := s.prediction(rec.ID)
	s.predictions[rec.ID] = alpha*float64(rec.StaticTimeUnits) + (1-alpha)*tau
}

// Current retires the current record if needed and returns whatever is
// current afterwards, or nil. It is not side-effect free; use Peek to look
// without advancing. A record bumped in feedback mode is lost to callers of
// Current, so feedback users should call Retire themselves.
func (s *Scheduler) Current() *Record {
	s.Retire()
	return s.current
}

// CurrentUnchecked is Current but panics with ErrEmptySchedule when idle.
func (s *Scheduler) CurrentUnchecked() *Record {
	rec := s.Current()
	if rec == nil {
		panic(ErrEmptySchedule)
	}
	return rec
}

// Peek returns the current record without retiring it.
func (s *Scheduler) Peek() *Record {
	return s.current
}

// next removes and returns the best ready candidate under the policy, or nil.
// Ties go to the candidate nearest the front of the ready set.
func (s *Scheduler) next() *Record {
	if len(s.ready) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(s.ready); i++ {
		if s.better(s.ready[i], s.ready[best]) {
			best = i
		}
	}

	rec := s.ready[best]
	copy(s.ready[best:], s.ready[best+1:])
	s.ready[len(s.ready)-1] = nil
	s.ready = s.ready[:len(s.ready)-1]
	return rec
}

// better reports whether a strictly beats b.
func (s *Scheduler) better(a, b *Record) bool {
	switch s.algo.Policy {
	case PolicyPriority, PolicyPreemptivePriority:
		return a.Priority < b.Priority
	case PolicySRT:
		// cmp.Compare is a total order over floats, NaN included.
		return cmp.Compare(a.estimate, b.estimate) < 0
	default:
		return a.scheduleTime < b.scheduleTime
	}
}

// Prediction returns the learned burst length for id.
func (s *Scheduler) Prediction(id uint32) (float64, bool) {
	tau, ok := s.predictions[id]
	return tau, ok
}

// Predictions returns a copy of the prediction table.
func (s *Scheduler) Predictions() map[uint32]float64 {
	return maps.Clone(s.predictions)
}

// Len returns the number of resident records, current included.
func (s *Scheduler) Len() int {
	n := len(s.ready)
	if s.current != nil {
		n++
	}
	return n
}

// Idle reports whether the scheduler holds no records.
func (s *Scheduler) Idle() bool {
	return s.Len() == 0
}
