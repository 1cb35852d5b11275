package simulator

import (
	"github.com/gonum/stat"
	"github.com/me/cpusched/pkg/model"
	"github.com/me/cpusched/pkg/sched"
)

// Report summarises the ticks simulated so far. It can be called at any
// point; Run calls it once the loop ends.
func (s *Simulator) Report() *model.Report {
	r := &model.Report{
		TotalTicks:      s.tick,
		BusyTicks:       s.busy,
		IdleTicks:       s.idle,
		ContextSwitches: s.switches,
		Demotions:       s.demotions,
		Shutdown:        s.shutdown,
		Segments:        make([]model.Segment, 0, len(s.segments)+1),
		Processes:       make([]model.ProcessResult, 0, len(s.admissions)),
		Rejections:      append([]model.Rejection(nil), s.rejections...),
	}

	r.Segments = append(r.Segments, s.segments...)
	if s.open != nil {
		r.Segments = append(r.Segments, s.open.seg)
	}
	for _, a := range s.admissions {
		r.Processes = append(r.Processes, a.result)
	}

	if r.TotalTicks > 0 {
		r.Utilization = float64(r.BusyTicks) / float64(r.TotalTicks)
		r.Throughput = float64(r.Completed()) / float64(r.TotalTicks)
	}
	r.Stats = computeStats(r.Processes)

	if !s.workload.Multilevel && s.workload.Levels[0].Policy == sched.PolicySRT {
		r.Predictions = s.target.Level(0).Predictions()
	}
	return r
}

// computeStats aggregates timings over the processes that completed.
func computeStats(results []model.ProcessResult) model.Stats {
	var turnaround, waiting, response []float64
	for _, p := range results {
		if p.State != model.ProcessStateTerminated {
			continue
		}
		turnaround = append(turnaround, float64(p.Turnaround))
		waiting = append(waiting, float64(p.Waiting))
		response = append(response, float64(p.Response))
	}

	var st model.Stats
	st.MeanTurnaround, st.StdDevTurnaround = meanStdDev(turnaround)
	st.MeanWaiting, st.StdDevWaiting = meanStdDev(waiting)
	st.MeanResponse, st.StdDevResponse = meanStdDev(response)
	return st
}

// meanStdDev returns the sample mean and standard deviation, with zeros in
// place of the undefined values for fewer than one or two samples.
func meanStdDev(x []float64) (mean, stddev float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean = stat.Mean(x, nil)
	if len(x) > 1 {
		stddev = stat.StdDev(x, nil)
	}
	return mean, stddev
}
