// Package simulator drives a scheduler tick by tick over a workload and
// records what ran when.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/me/cpusched/internal/config"
	"github.com/me/cpusched/internal/metrics"
	"github.com/me/cpusched/internal/tracing"
	"github.com/me/cpusched/internal/workload"
	"github.com/me/cpusched/pkg/model"
	"github.com/me/cpusched/pkg/sched"
)

// ErrTickLimit is returned when a run hits the configured tick budget
// before the workload drains.
var ErrTickLimit = errors.New("simulator: tick limit reached")

// Option configures a Simulator.
type Option func(*Simulator)

// WithMetrics reports simulator activity to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Simulator) { s.metrics = c }
}

// WithTarget replaces the scheduling structure built from the workload.
func WithTarget(t Target) Option {
	return func(s *Simulator) { s.target = t }
}

// admission is one process handed to the scheduler and its bookkeeping.
type admission struct {
	result    model.ProcessResult
	remaining int
	shutdown  bool
	// rec is the record last seen carrying this admission. A multilevel
	// queue creates a fresh record each time it moves a process.
	rec *sched.Record
}

// openSegment is the timeline segment still being extended.
type openSegment struct {
	owner *admission
	seg   model.Segment
}

// Simulator runs one workload against one scheduling structure. It is not
// safe for concurrent use.
type Simulator struct {
	workload *workload.Workload
	config   config.SimulationConfig
	logger   *slog.Logger
	metrics  *metrics.Collector
	target   Target

	cpu      uint32
	arrivals []workload.Arrival
	next     int
	tick     int

	admissions  []*admission
	outstanding map[uint32][]*admission
	byRecord    map[*sched.Record]*admission
	fresh       []*admission

	last     *admission
	open     *openSegment
	segments []model.Segment

	rejections []model.Rejection

	busy, idle, switches, demotions int

	shutdown bool
	done     bool
}

// New creates a Simulator for w.
func New(w *workload.Workload, cfg config.SimulationConfig, logger *slog.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		workload:    w,
		config:      cfg,
		logger:      logger.With("component", "simulator"),
		cpu:         cfg.CPU,
		arrivals:    w.Arrivals(),
		outstanding: make(map[uint32][]*admission),
		byRecord:    make(map[*sched.Record]*admission),
	}
	if w.CPU != nil {
		s.cpu = *w.CPU
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.target == nil {
		s.target = NewTarget(w)
	}
	return s
}

// Now returns the number of ticks simulated so far.
func (s *Simulator) Now() int { return s.tick }

// Done reports whether the run has finished.
func (s *Simulator) Done() bool { return s.done }

// Run ticks until the workload drains, a shutdown process finishes, the
// tick budget runs out or ctx is cancelled. The report is returned even
// when err is non-nil and covers the ticks simulated so far.
func (s *Simulator) Run(ctx context.Context) (report *model.Report, err error) {
	ctx, span := tracing.StartSpan(ctx, "simulator.Run")
	span.WithAttributes(map[string]string{
		"workload": s.workload.Name,
		"policy":   s.workload.Policy(),
	})
	defer func() {
		if report != nil {
			span.SetInt("ticks", report.TotalTicks)
		}
		tracing.EndSpan(span, err)
	}()

	s.logger.Info("simulation started",
		"workload", s.workload.Name,
		"policy", s.workload.Policy(),
		"processes", len(s.arrivals),
		"max_ticks", s.config.MaxTicks,
	)

	var pace <-chan time.Time
	if s.config.TickInterval > 0 {
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		pace = ticker.C
	}

	for !s.done {
		if s.config.MaxTicks > 0 && s.tick >= s.config.MaxTicks {
			err = fmt.Errorf("%w after %d ticks", ErrTickLimit, s.tick)
			break
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-pace:
			}
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		if err != nil {
			break
		}
		if err = s.Tick(ctx); err != nil {
			break
		}
	}

	report = s.Report()
	outcome := metrics.OutcomeCompleted
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		s.logger.Error("simulation failed", "workload", s.workload.Name, "tick", s.tick, "error", err)
	case s.shutdown:
		outcome = metrics.OutcomeShutdown
		s.logger.Info("simulation shut down", "workload", s.workload.Name, "tick", s.tick)
	default:
		s.logger.Info("simulation finished",
			"workload", s.workload.Name,
			"ticks", report.TotalTicks,
			"completed", report.Completed(),
			"utilization", report.Utilization,
		)
	}
	s.metrics.ObserveRun(outcome, report.TotalTicks)
	return report, err
}

// Tick runs a single simulation step.
func (s *Simulator) Tick(ctx context.Context) error {
	if s.done {
		return nil
	}

	// Phase 1: Hand this tick's arrivals to the scheduler.
	s.admit()

	// Phase 2: Dispatch. Records that reach the CPU with no work left are
	// completed without consuming the tick.
	busy := false
	for {
		stop, err := s.reapFinished()
		if err != nil {
			return fmt.Errorf("tick %d (reap): %w", s.tick, err)
		}
		// Phase 3: A finished shutdown process ends the run.
		if stop {
			s.stop()
			return nil
		}

		level, rec, ok := s.target.CurrentWithKey()
		if !ok {
			break
		}
		if rec.TimeUnits == 0 {
			continue
		}

		// Phase 4: Execute one tick of the dispatched record.
		if err := s.execute(level, rec); err != nil {
			return fmt.Errorf("tick %d (execute): %w", s.tick, err)
		}
		busy = true
		break
	}

	if err := s.settleFresh(); err != nil {
		return fmt.Errorf("tick %d (settle): %w", s.tick, err)
	}

	if !busy {
		s.closeSegment()
		s.last = nil
		if s.next >= len(s.arrivals) {
			s.done = true
			return nil
		}
		s.idle++
	} else {
		s.busy++
	}
	s.metrics.ObserveTick(busy)
	s.tick++

	if s.shutdown {
		s.stop()
	}
	return nil
}

// admit schedules every arrival due at the current tick. Processes pinned
// to a processor other than s.cpu are rejected.
func (s *Simulator) admit() {
	for s.next < len(s.arrivals) && s.arrivals[s.next].Tick <= s.tick {
		p := s.arrivals[s.next].Process
		s.next++

		if p.HasAffinity() && uint32(p.Affinity) != s.cpu {
			s.rejections = append(s.rejections, model.Rejection{
				PID:      p.ID,
				Arrival:  s.tick,
				Affinity: p.Affinity,
				Reason:   fmt.Sprintf("pinned to cpu %d, scheduler runs on cpu %d", p.Affinity, s.cpu),
			})
			s.metrics.ObserveRejection()
			s.logger.Warn("process rejected", "pid", p.ID, "affinity", p.Affinity, "cpu", s.cpu)
			continue
		}

		a := &admission{
			result: model.ProcessResult{
				PID:        p.ID,
				Arrival:    s.tick,
				Burst:      p.TimeUnits,
				Priority:   p.Priority,
				FirstRun:   -1,
				Completion: -1,
				State:      model.ProcessStateNew,
			},
			remaining: p.TimeUnits,
			shutdown:  p.IsShutdown(),
		}
		s.admissions = append(s.admissions, a)
		s.outstanding[p.ID] = append(s.outstanding[p.ID], a)
		s.fresh = append(s.fresh, a)
		s.target.Schedule(p)

		s.logger.Debug("process admitted", "pid", p.ID, "tick", s.tick, "burst", p.TimeUnits, "priority", p.Priority)
	}
}

// reapFinished completes every level's current record that has no work
// left. Those are retired by the next dispatch without ever running, so
// they have to be accounted for first. It reports whether one of them
// was a shutdown process.
func (s *Simulator) reapFinished() (bool, error) {
	stop := false
	for i := 0; i < s.target.Levels(); i++ {
		rec := s.target.Level(i).Peek()
		if rec == nil || rec.TimeUnits > 0 {
			continue
		}
		a := s.admissionFor(rec)
		if a == nil || a.result.State.IsTerminal() {
			continue
		}
		if a.result.FirstRun < 0 {
			a.result.FirstRun = s.tick
			a.result.Response = s.tick - a.result.Arrival
		}
		if err := s.transition(a, model.ProcessStateRunning); err != nil {
			return false, err
		}
		a.result.Level = i
		if err := s.complete(a, s.tick); err != nil {
			return false, err
		}
		if a.shutdown {
			stop = true
		}
	}
	return stop, nil
}

// execute runs rec for one tick and records the outcome.
func (s *Simulator) execute(level int, rec *sched.Record) error {
	a := s.admissionFor(rec)
	if a == nil {
		return fmt.Errorf("dispatched process %d has no outstanding admission", rec.ID)
	}

	if s.last != a {
		if s.last != nil {
			s.switches++
			s.metrics.ObserveContextSwitch()
			if !s.last.result.State.IsTerminal() {
				if err := s.transition(s.last, model.ProcessStateReady); err != nil {
					return err
				}
			}
		}
		s.last = a
	}
	if level > a.result.Level {
		drops := level - a.result.Level
		s.demotions += drops
		s.metrics.ObserveDemotion(drops)
		s.logger.Debug("process demoted", "pid", a.result.PID, "from", a.result.Level, "to", level, "tick", s.tick)
	}
	a.result.Level = level

	if a.result.FirstRun < 0 {
		a.result.FirstRun = s.tick
		a.result.Response = s.tick - a.result.Arrival
	}
	if a.result.State != model.ProcessStateRunning {
		if err := s.transition(a, model.ProcessStateRunning); err != nil {
			return err
		}
	}

	s.extendSegment(a, level)
	rec.Tick()
	a.remaining--
	s.metrics.ObserveDispatch(level)
	s.logger.Debug("dispatch", "tick", s.tick, "pid", rec.ID, "level", level, "remaining", rec.TimeUnits)

	if rec.TimeUnits == 0 {
		if err := s.complete(a, s.tick+1); err != nil {
			return err
		}
		if a.shutdown {
			s.shutdown = true
		}
	}
	return nil
}

// admissionFor finds the admission a record belongs to. A record not seen
// before is matched to the oldest outstanding admission of its id with the
// same remaining work. A record with work left falls back to the oldest
// outstanding admission of its id; one without is a leftover of an
// admission that already completed and yields nil.
func (s *Simulator) admissionFor(rec *sched.Record) *admission {
	if a, ok := s.byRecord[rec]; ok {
		return a
	}

	var a *admission
	queue := s.outstanding[rec.ID]
	for _, cand := range queue {
		if cand.remaining == rec.TimeUnits {
			a = cand
			break
		}
	}
	if a == nil {
		if rec.TimeUnits == 0 || len(queue) == 0 {
			return nil
		}
		a = queue[0]
	}

	if a.rec != nil {
		delete(s.byRecord, a.rec)
	}
	a.rec = rec
	s.byRecord[rec] = a
	return a
}

// complete marks a as finished at tick end.
func (s *Simulator) complete(a *admission, end int) error {
	if err := s.transition(a, model.ProcessStateTerminated); err != nil {
		return err
	}
	a.remaining = 0
	a.result.Completion = end
	a.result.Turnaround = end - a.result.Arrival
	a.result.Waiting = a.result.Turnaround - a.result.Burst

	queue := s.outstanding[a.result.PID]
	for i, cand := range queue {
		if cand == a {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(s.outstanding, a.result.PID)
	} else {
		s.outstanding[a.result.PID] = queue
	}
	// The finished record stays mapped: it may still be resident until the
	// scheduler retires it.

	s.metrics.ObserveCompletion()
	s.logger.Debug("process completed", "pid", a.result.PID, "tick", end, "turnaround", a.result.Turnaround)
	return nil
}

// settleFresh moves this tick's admissions that did not run into READY.
func (s *Simulator) settleFresh() error {
	for _, a := range s.fresh {
		if a.result.State == model.ProcessStateNew {
			if err := s.transition(a, model.ProcessStateReady); err != nil {
				return err
			}
		}
	}
	s.fresh = s.fresh[:0]
	return nil
}

func (s *Simulator) transition(a *admission, to model.ProcessState) error {
	from := a.result.State
	if !from.CanTransitionTo(to) {
		return &model.InvalidTransitionError{
			Entity: "Process",
			ID:     strconv.FormatUint(uint64(a.result.PID), 10),
			From:   string(from),
			To:     string(to),
		}
	}
	a.result.State = to
	return nil
}

func (s *Simulator) extendSegment(a *admission, level int) {
	if o := s.open; o != nil && o.owner == a && o.seg.Level == level && o.seg.End == s.tick {
		o.seg.End++
		return
	}
	s.closeSegment()
	s.open = &openSegment{
		owner: a,
		seg:   model.Segment{PID: a.result.PID, Level: level, Start: s.tick, End: s.tick + 1},
	}
}

func (s *Simulator) closeSegment() {
	if s.open == nil {
		return
	}
	s.segments = append(s.segments, s.open.seg)
	s.open = nil
}

// stop ends the run after a shutdown. Residents stay unfinished and
// arrivals not yet admitted are reported as rejected.
func (s *Simulator) stop() {
	s.shutdown = true
	s.done = true
	s.closeSegment()

	for _, a := range s.admissions {
		if a.result.State == model.ProcessStateRunning {
			a.result.State = model.ProcessStateReady
		}
	}
	for ; s.next < len(s.arrivals); s.next++ {
		p := s.arrivals[s.next].Process
		s.rejections = append(s.rejections, model.Rejection{
			PID:      p.ID,
			Arrival:  s.arrivals[s.next].Tick,
			Affinity: p.Affinity,
			Reason:   "run shut down before arrival",
		})
	}
}
