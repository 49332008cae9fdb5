package chart

import (
	"bytes"
	"fmt"

	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/xuri/excelize/v2"
)

const (
	dataSheet    = "chart"
	summarySheet = "summary"
)

// BuildXLSX renders a workbook with the data table, a native line chart and
// the summary figures.
func BuildXLSX(c types.Chart, summary types.ChartSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", dataSheet)
	f.NewSheet(summarySheet)

	_ = f.SetCellValue(dataSheet, "A1", "Time")
	for j, ds := range c.Datasets {
		col, err := excelize.ColumnNumberToName(j + 2)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(dataSheet, col+"1", ds.Label)
	}
	for i, row := range table(c) {
		r := i + 2
		_ = f.SetCellValue(dataSheet, fmt.Sprintf("A%d", r), c.Labels[i])
		for j, cl := range row {
			if !cl.ok {
				continue
			}
			col, _ := excelize.ColumnNumberToName(j + 2)
			_ = f.SetCellValue(dataSheet, fmt.Sprintf("%s%d", col, r), cl.value)
		}
	}

	if len(c.Labels) > 0 {
		last := len(c.Labels) + 1
		var series []excelize.ChartSeries
		for j := range c.Datasets {
			col, _ := excelize.ColumnNumberToName(j + 2)
			series = append(series, excelize.ChartSeries{
				Name:       fmt.Sprintf("%s!$%s$1", dataSheet, col),
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", dataSheet, last),
				Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", dataSheet, col, col, last),
			})
		}
		anchor, _ := excelize.CoordinatesToCellName(len(c.Datasets)+3, 2)
		if err := f.AddChart(dataSheet, anchor, &excelize.Chart{
			Type:   excelize.Line,
			Series: series,
		}); err != nil {
			return nil, fmt.Errorf("failed to add chart: %w", err)
		}
	}

	rows := [][2]interface{}{
		{"Submission", summary.SubmissionID},
		{"Date", c.Day.Format("2006-01-02")},
		{"Daily Solar Output", summary.DailySolarOutput},
		{"Optimal Time", summary.OptimalTime},
		{"Washing Machine", usageLine(summary.WMOptimalUsage)},
		{"Tumble Dryer", usageLine(summary.TDOptimalUsage)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Should I Wash?")
	for i, row := range rows {
		r := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", r), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", r), row[1])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
