// Package chart turns the submission chart payload into line series and
// renders them for the terminal, spreadsheets and PDFs.
package chart

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// SummaryUsageTimes is how many ranked start times the summary lists per
// appliance.
const SummaryUsageTimes = 3

// usageLine lists the best ranked start times of an appliance.
func usageLine(u types.UsageTimes) string {
	line := strings.Join(u.Top(SummaryUsageTimes), ", ")
	if more := len(u) - SummaryUsageTimes; more > 0 {
		line += fmt.Sprintf(" (+%d more)", more)
	}
	return line
}

// ApplianceStep is the time between two consumption readings of an
// appliance's cycle.
const ApplianceStep = 10 * time.Minute

const (
	LabelSolar          = "Solar Production (Wh)"
	LabelWashingMachine = "Washing Machine Consumption (Wh)"
	LabelTumbleDryer    = "Tumble Dryer Consumption (Wh)"
)

type seriesStyle struct {
	border     string
	background string
	fill       bool
	rgb        [3]int
}

var styles = map[string]seriesStyle{
	LabelSolar:          {border: "rgb(255, 205, 86)", background: "rgba(255, 205, 86, 0.5)", fill: true, rgb: [3]int{255, 205, 86}},
	LabelWashingMachine: {border: "rgb(54, 162, 235)", background: "rgba(54, 162, 235, 0.5)", rgb: [3]int{54, 162, 235}},
	LabelTumbleDryer:    {border: "rgb(255, 99, 132)", background: "rgba(255, 99, 132, 0.5)", rgb: [3]int{255, 99, 132}},
}

var payloadDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Day returns the day the payload describes, or the day of now if the payload
// has no usable date.
func Day(p types.ChartPayload, now time.Time) time.Time {
	if s := strings.TrimSpace(p.Date); s != "" {
		for _, layout := range payloadDateLayouts {
			if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
			}
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Build reshapes the payload into a solar series and one series per
// appliance. Appliance readings are placed every ApplianceStep from the
// appliance's best start time; an appliance without a start time has an empty
// series.
func Build(p types.ChartPayload, now time.Time) types.Chart {
	day := Day(p, now)

	solar := make([]types.ChartPoint, 0, len(p.HourlySolarProduction))
	for _, h := range p.HourlySolarProduction {
		solar = append(solar, types.ChartPoint{
			X: h.Hour.On(day).Format("15:04"),
			Y: h.Production,
		})
	}

	c := types.Chart{
		Day: day,
		Datasets: []types.ChartDataset{
			dataset(LabelSolar, solar),
			dataset(LabelWashingMachine, appliancePoints(p, types.ApplianceWashingMachine, p.WMOptimalUsage, day)),
			dataset(LabelTumbleDryer, appliancePoints(p, types.ApplianceTumbleDryer, p.TDOptimalUsage, day)),
		},
	}
	c.Labels = labels(c.Datasets)
	return c
}

func appliancePoints(p types.ChartPayload, name string, usage types.UsageTimes, day time.Time) []types.ChartPoint {
	points := []types.ChartPoint{}
	start, ok := usage.Best()
	if !ok {
		return points
	}
	t := start.On(day)
	for _, item := range p.ApplianceConsumption {
		if item.ApplianceName != name {
			continue
		}
		points = append(points, types.ChartPoint{
			X: t.Format("15:04"),
			Y: item.Consumption,
		})
		t = t.Add(ApplianceStep)
	}
	return points
}

func dataset(label string, points []types.ChartPoint) types.ChartDataset {
	st := styles[label]
	return types.ChartDataset{
		Label:           label,
		Data:            points,
		BorderColor:     st.border,
		BackgroundColor: st.background,
		Fill:            st.fill,
	}
}

func labels(datasets []types.ChartDataset) []string {
	var all []string
	for _, ds := range datasets {
		for _, pt := range ds.Data {
			all = append(all, pt.X)
		}
	}
	slices.Sort(all)
	return slices.Compact(all)
}

// table lines the datasets up against the labels. A dataset without a value
// at a label has ok=false there.
type cell struct {
	value float64
	ok    bool
}

func table(c types.Chart) [][]cell {
	index := make(map[string]int, len(c.Labels))
	for i, l := range c.Labels {
		index[l] = i
	}
	rows := make([][]cell, len(c.Labels))
	for i := range rows {
		rows[i] = make([]cell, len(c.Datasets))
	}
	for j, ds := range c.Datasets {
		for _, pt := range ds.Data {
			if i, ok := index[pt.X]; ok {
				rows[i][j] = cell{value: pt.Y, ok: true}
			}
		}
	}
	return rows
}
