package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// WeatherSnapshot is the response of POST /weatherdata/.
type WeatherSnapshot struct {
	Temperature   float64    `json:"temperature" yaml:"temperature"`
	CloudCover    FlexString `json:"cloud_cover" yaml:"cloud_cover"`
	WindSpeed     float64    `json:"wind_speed" yaml:"wind_speed"`
	WindDirection float64    `json:"wind_direction" yaml:"wind_direction"`
	Humidity      float64    `json:"humidity" yaml:"humidity"`
	Precipitation float64    `json:"precipitation" yaml:"precipitation"`
}

// SolarEstimate is the response of POST /solardata/.
type SolarEstimate struct {
	SolarAltitude    float64    `json:"solar_altitude" yaml:"solar_altitude"`
	SolarAzimuth     float64    `json:"solar_azimuth" yaml:"solar_azimuth"`
	DailySolarOutput float64    `json:"daily_solar_output" yaml:"daily_solar_output"`
	OptimalTime      string     `json:"optimal_time" yaml:"optimal_time"`
	OptimalPower     float64    `json:"optimal_power" yaml:"optimal_power"`
	WMOptimalUsage   UsageTimes `json:"wm_optimal_usage" yaml:"wm_optimal_usage"`
	TDOptimalUsage   UsageTimes `json:"td_optimal_usage" yaml:"td_optimal_usage"`
}

// FlexString decodes from either a JSON string or a JSON number. The API is
// not consistent about which it sends for identifiers and cloud cover.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Float returns the value as a number if it is one.
func (f FlexString) Float() (float64, bool) {
	v, err := strconv.ParseFloat(string(f), 64)
	return v, err == nil
}
