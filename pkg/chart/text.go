package chart

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// RenderText writes the summary followed by one row per label and one column
// per series.
func RenderText(w io.Writer, c types.Chart, summary types.ChartSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Submission:\t%s\n", summary.SubmissionID)
	fmt.Fprintf(tw, "Date:\t%s\n", c.Day.Format("2006-01-02"))
	fmt.Fprintf(tw, "Daily solar output:\t%.2f\n", summary.DailySolarOutput)
	if summary.OptimalTime != "" {
		fmt.Fprintf(tw, "Optimal time:\t%s\n", summary.OptimalTime)
	}
	if len(summary.WMOptimalUsage) > 0 {
		fmt.Fprintf(tw, "Washing machine:\t%s\n", usageLine(summary.WMOptimalUsage))
	}
	if len(summary.TDOptimalUsage) > 0 {
		fmt.Fprintf(tw, "Tumble dryer:\t%s\n", usageLine(summary.TDOptimalUsage))
	}
	fmt.Fprintln(tw)

	header := []string{"Time"}
	for _, ds := range c.Datasets {
		header = append(header, ds.Label)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i, row := range table(c) {
		cols := []string{c.Labels[i]}
		for _, cl := range row {
			if cl.ok {
				cols = append(cols, fmt.Sprintf("%.2f", cl.value))
			} else {
				cols = append(cols, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	return tw.Flush()
}
