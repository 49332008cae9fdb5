package chart

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// plot area in mm
const (
	plotLeft   = 25.0
	plotTop    = 70.0
	plotWidth  = 160.0
	plotHeight = 80.0
)

// BuildPDF renders an A4 page with the summary, the line chart and the data
// table.
func BuildPDF(c types.Chart, summary types.ChartSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Should I Wash?")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Submission: %s", summary.SubmissionID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", c.Day.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Daily Solar Output: %.2f", summary.DailySolarOutput))
	pdf.Ln(5)
	if summary.OptimalTime != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Optimal Time: %s", summary.OptimalTime))
		pdf.Ln(5)
	}
	if len(summary.WMOptimalUsage) > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Washing Machine: %s", usageLine(summary.WMOptimalUsage)))
		pdf.Ln(5)
	}
	if len(summary.TDOptimalUsage) > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Tumble Dryer: %s", usageLine(summary.TDOptimalUsage)))
		pdf.Ln(5)
	}

	drawPlot(pdf, c)

	pdf.SetY(plotTop + plotHeight + 25)
	pdf.SetFont("Arial", "B", 8)
	colWidth := 45.0
	pdf.CellFormat(25, 6, "Time", "1", 0, "C", false, 0, "")
	for _, ds := range c.Datasets {
		pdf.CellFormat(colWidth, 6, ds.Label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for i, row := range table(c) {
		pdf.CellFormat(25, 5, c.Labels[i], "1", 0, "C", false, 0, "")
		for _, cl := range row {
			txt := "-"
			if cl.ok {
				txt = fmt.Sprintf("%.2f", cl.value)
			}
			pdf.CellFormat(colWidth, 5, txt, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawPlot(pdf *gofpdf.Fpdf, c types.Chart) {
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.Line(plotLeft, plotTop, plotLeft, plotTop+plotHeight)
	pdf.Line(plotLeft, plotTop+plotHeight, plotLeft+plotWidth, plotTop+plotHeight)

	if len(c.Labels) == 0 {
		return
	}

	var maxY float64
	for _, ds := range c.Datasets {
		for _, pt := range ds.Data {
			maxY = max(maxY, pt.Y)
		}
	}
	if maxY == 0 {
		maxY = 1
	}

	pos := make(map[string]int, len(c.Labels))
	for i, l := range c.Labels {
		pos[l] = i
	}
	step := plotWidth
	if len(c.Labels) > 1 {
		step = plotWidth / float64(len(c.Labels)-1)
	}
	x := func(label string) float64 {
		return plotLeft + float64(pos[label])*step
	}
	y := func(v float64) float64 {
		return plotTop + plotHeight - v/maxY*plotHeight
	}

	pdf.SetFont("Arial", "", 6)
	pdf.Text(plotLeft-12, plotTop+2, fmt.Sprintf("%.0f", maxY))
	pdf.Text(plotLeft-5, plotTop+plotHeight, "0")
	// every label would overlap, so only mark a handful
	every := max(1, len(c.Labels)/8)
	for i := 0; i < len(c.Labels); i += every {
		pdf.Text(x(c.Labels[i])-3, plotTop+plotHeight+4, c.Labels[i])
	}

	legendY := plotTop + plotHeight + 10
	for k, ds := range c.Datasets {
		st := styles[ds.Label]
		pdf.SetDrawColor(st.rgb[0], st.rgb[1], st.rgb[2])
		pdf.SetLineWidth(0.6)
		for i := 1; i < len(ds.Data); i++ {
			prev, cur := ds.Data[i-1], ds.Data[i]
			pdf.Line(x(prev.X), y(prev.Y), x(cur.X), y(cur.Y))
		}
		lx := plotLeft + float64(k)*55
		pdf.Line(lx, legendY, lx+6, legendY)
		pdf.Text(lx+8, legendY+1, ds.Label)
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
}
