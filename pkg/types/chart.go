package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Appliance names as reported in appliance_consumption.
const (
	ApplianceWashingMachine = "washing_machine"
	ApplianceTumbleDryer    = "tumble_dryer"
)

// ChartPayload is the response of GET /submission_chart_data/{id}/.
type ChartPayload struct {
	Date                  string                 `json:"date" yaml:"date"`
	DailySolarOutput      float64                `json:"daily_solar_output" yaml:"daily_solar_output"`
	OptimalTime           string                 `json:"optimal_time" yaml:"optimal_time"`
	WMOptimalUsage        UsageTimes             `json:"wm_optimal_usage" yaml:"wm_optimal_usage"`
	TDOptimalUsage        UsageTimes             `json:"td_optimal_usage" yaml:"td_optimal_usage"`
	HourlySolarProduction []HourlyProduction     `json:"hourly_solar_production" yaml:"hourly_solar_production"`
	ApplianceConsumption  []ApplianceConsumption `json:"appliance_consumption" yaml:"appliance_consumption"`
}

// HourlyProduction is the predicted solar production for one hour.
type HourlyProduction struct {
	Hour       ClockTime `json:"hour" yaml:"hour"`
	Production float64   `json:"production" yaml:"production"`
}

// ApplianceConsumption is one 10 minute step of an appliance's cycle.
type ApplianceConsumption struct {
	ApplianceName string  `json:"appliance_name" yaml:"appliance_name"`
	Consumption   float64 `json:"consumption" yaml:"consumption"`
}

// UsageTimes holds optimal usage start times, best first. The API sends either
// a single time or a ranked list.
type UsageTimes []string

func (u *UsageTimes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*u = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*u = nil
		} else {
			*u = UsageTimes{s}
		}
		return nil
	default:
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("optimal usage must be a string or a list of strings: %w", err)
		}
		*u = list
		return nil
	}
}

// Best returns the highest ranked start time.
func (u UsageTimes) Best() (ClockTime, bool) {
	if len(u) == 0 {
		return ClockTime{}, false
	}
	c, err := ParseClockTime(u[0])
	if err != nil {
		return ClockTime{}, false
	}
	return c, true
}

// Top returns at most the n highest ranked entries.
func (u UsageTimes) Top(n int) UsageTimes {
	if len(u) <= n {
		return u
	}
	return u[:n]
}

// ClockTime is a wall clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

var clockTimeLayouts = []string{
	"15:04",
	"15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseClockTime accepts a bare hour ("7"), a time ("07:30") or a full
// timestamp, of which only the time of day is kept.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if h, err := strconv.Atoi(s); err == nil {
		if h < 0 || h > 23 {
			return ClockTime{}, fmt.Errorf("hour out of range: %d", h)
		}
		return ClockTime{Hour: h}, nil
	}
	for _, layout := range clockTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
}

// On returns the clock time on the given day.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("hour must be a string or number: %w", err)
		}
		s = strconv.Itoa(int(f))
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Chart is a line chart ready to be drawn. Labels is the sorted set of every
// x value used by any dataset.
type Chart struct {
	Day      time.Time      `json:"day" yaml:"day"`
	Labels   []string       `json:"labels" yaml:"labels"`
	Datasets []ChartDataset `json:"datasets" yaml:"datasets"`
}

// ChartDataset is one line on the chart.
type ChartDataset struct {
	Label           string       `json:"label" yaml:"label"`
	Data            []ChartPoint `json:"data" yaml:"data"`
	BorderColor     string       `json:"borderColor" yaml:"borderColor"`
	BackgroundColor string       `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	Fill            bool         `json:"fill" yaml:"fill"`
}

// ChartPoint is an x/y pair where x is an HH:MM label.
type ChartPoint struct {
	X string  `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ChartSummary is the headline figures shown alongside a chart.
type ChartSummary struct {
	SubmissionID     string     `json:"submissionId" yaml:"submissionId"`
	Date             string     `json:"date" yaml:"date"`
	DailySolarOutput float64    `json:"dailySolarOutput" yaml:"dailySolarOutput"`
	OptimalTime      string     `json:"optimalTime" yaml:"optimalTime"`
	WMOptimalUsage   UsageTimes `json:"wmOptimalUsage" yaml:"wmOptimalUsage"`
	TDOptimalUsage   UsageTimes `json:"tdOptimalUsage" yaml:"tdOptimalUsage"`
}

// Summary extracts the headline figures from the payload.
func (p ChartPayload) Summary(submissionID string) ChartSummary {
	return ChartSummary{
		SubmissionID:     submissionID,
		Date:             p.Date,
		DailySolarOutput: p.DailySolarOutput,
		OptimalTime:      p.OptimalTime,
		WMOptimalUsage:   p.WMOptimalUsage,
		TDOptimalUsage:   p.TDOptimalUsage,
	}
}
