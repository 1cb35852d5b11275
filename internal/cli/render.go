package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/me/cpusched/pkg/model"
)

// maxGanttWidth is the widest timeline printed; longer runs are scaled so
// that one column covers several ticks.
const maxGanttWidth = 100

// printGantt draws one row per pid. A column is '#' when the process ran
// at level 0, the level digit when it ran lower down, and '.' otherwise.
func printGantt(w io.Writer, r *model.Report) {
	if r.TotalTicks == 0 || len(r.Segments) == 0 {
		fmt.Fprintln(w, "(empty timeline)")
		return
	}

	scale := (r.TotalTicks + maxGanttWidth - 1) / maxGanttWidth
	cols := (r.TotalTicks + scale - 1) / scale

	var pids []uint32
	rows := map[uint32][]byte{}
	for _, seg := range r.Segments {
		row, ok := rows[seg.PID]
		if !ok {
			row = []byte(strings.Repeat(".", cols))
			rows[seg.PID] = row
			pids = append(pids, seg.PID)
		}
		mark := byte('#')
		if seg.Level > 0 && seg.Level < 10 {
			mark = byte('0' + seg.Level)
		}
		for tick := seg.Start; tick < seg.End; tick++ {
			row[tick/scale] = mark
		}
	}
	slices.Sort(pids)

	label := "tick"
	if scale > 1 {
		label = fmt.Sprintf("x%d", scale)
	}
	fmt.Fprintf(w, "%8s  %s\n", label, ruler(cols, scale))
	for _, pid := range pids {
		fmt.Fprintf(w, "%8d  %s\n", pid, rows[pid])
	}
}

// ruler marks every tenth column with its starting tick.
func ruler(cols, scale int) string {
	b := []byte(strings.Repeat(" ", cols))
	for c := 0; c < cols; c += 10 {
		n := strconv.Itoa(c * scale)
		if c+len(n) > cols {
			break
		}
		copy(b[c:], n)
	}
	return string(b)
}

func printProcesses(w io.Writer, r *model.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tARRIVAL\tBURST\tPRIO\tFIRST\tDONE\tTURNAROUND\tWAITING\tRESPONSE\tLEVEL\tSTATE")
	for _, p := range r.Processes {
		done := p.State == model.ProcessStateTerminated
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.PID, p.Arrival, p.Burst, p.Priority,
			tickOrDash(p.FirstRun), tickOrDash(p.Completion),
			valueIf(done, p.Turnaround), valueIf(done, p.Waiting), valueIf(p.FirstRun >= 0, p.Response),
			p.Level, p.State)
	}
	tw.Flush()
}

func printSummary(w io.Writer, r *model.Report) {
	fmt.Fprintf(w, "Ticks:            %d (busy %d, idle %d)\n", r.TotalTicks, r.BusyTicks, r.IdleTicks)
	fmt.Fprintf(w, "Utilization:      %.1f%%\n", r.Utilization*100)
	fmt.Fprintf(w, "Throughput:       %.4f processes/tick\n", r.Throughput)
	fmt.Fprintf(w, "Completed:        %d of %d\n", r.Completed(), len(r.Processes))
	fmt.Fprintf(w, "Context switches: %d\n", r.ContextSwitches)
	if r.Demotions > 0 {
		fmt.Fprintf(w, "Demotions:        %d\n", r.Demotions)
	}
	if r.Shutdown {
		fmt.Fprintln(w, "Stopped by a shutdown process.")
	}

	st := r.Stats
	fmt.Fprintf(w, "Turnaround:       mean %.2f  stddev %.2f\n", st.MeanTurnaround, st.StdDevTurnaround)
	fmt.Fprintf(w, "Waiting:          mean %.2f  stddev %.2f\n", st.MeanWaiting, st.StdDevWaiting)
	fmt.Fprintf(w, "Response:         mean %.2f  stddev %.2f\n", st.MeanResponse, st.StdDevResponse)

	if len(r.Predictions) > 0 {
		fmt.Fprintln(w, "Burst predictions:")
		for _, id := range slices.Sorted(maps.Keys(r.Predictions)) {
			fmt.Fprintf(w, "  %d: %.3f\n", id, r.Predictions[id])
		}
	}
	if len(r.Rejections) > 0 {
		fmt.Fprintln(w, "Rejected:")
		for _, rej := range r.Rejections {
			fmt.Fprintf(w, "  %d (arrival %d): %s\n", rej.PID, rej.Arrival, rej.Reason)
		}
	}
}

// printReport writes the timeline, the process table and the summary.
func printReport(w io.Writer, r *model.Report) {
	printGantt(w, r)
	fmt.Fprintln(w)
	printProcesses(w, r)
	fmt.Fprintln(w)
	printSummary(w, r)
}

func tickOrDash(t int) string {
	if t < 0 {
		return "-"
	}
	return strconv.Itoa(t)
}

func valueIf(ok bool, v int) string {
	if !ok {
		return "-"
	}
	return strconv.Itoa(v)
}
