package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rohankatakam/reqtaker/internal/pipeline"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

// ScoreTable prints per-task scores for every test iteration, the averages
// and the execution time of each iteration.
func ScoreTable(w io.Writer, r *pipeline.TestReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)

	header := []string{"Tasks/Scores"}
	for i := 1; i <= r.Iterations; i++ {
		header = append(header, fmt.Sprintf("Run %d", i))
	}
	header = append(header, "Avg. Total")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, task := range r.Tasks {
		row := []string{task}
		for _, s := range r.Scores[task] {
			row = append(row, fmt.Sprintf("%.1f", s))
		}
		row = append(row, fmt.Sprintf("%.1f", r.TaskAverage(task)))
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}

	row := []string{"Crew"}
	for i := 0; i < r.Iterations; i++ {
		row = append(row, fmt.Sprintf("%.2f", r.IterationAverage(i)))
	}
	row = append(row, fmt.Sprintf("%.2f", r.CrewAverage()))
	fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")

	row = []string{"Execution Time (s)"}
	for _, d := range r.Durations {
		row = append(row, fmt.Sprintf("%d", int(d.Round(time.Second).Seconds())))
	}
	row = append(row, "")
	fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")

	return tw.Flush()
}

// TaskList prints the task ids of a kickoff for `reqtaker tasks`.
func TaskList(w io.Writer, k *storage.Kickoff, outputs []*storage.TaskOutput) error {
	fmt.Fprintf(w, "Latest kickoff %s (%s, %s, started %s)\n\n",
		k.ID, k.Mode, k.Status, k.StartedAt.Local().Format("2006-01-02 15:04:05"))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTASK ID\tTASK\tAGENT\tDURATION")
	for _, o := range outputs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Position+1, o.TaskID, o.TaskName, o.Agent, o.Duration().Round(time.Second))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nReplay from a task with: reqtaker replay <task_id>")
	return nil
}
