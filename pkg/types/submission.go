package types

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the date/time layout the API expects for a submission.
const DateLayout = "2006-01-02T15:04"

// Field names match the JSON keys the API uses so that validation messages can
// be shown next to the same inputs the server would complain about.
const (
	FieldPostCode         = "post_code"
	FieldSolarPanels      = "number_of_solar_panels"
	FieldPanelOrientation = "panel_orientation"
	FieldPanelTilt        = "panel_tilt"
	FieldDate             = "date"
)

// outward code, optional space, inward code
var postCodeRegexp = regexp.MustCompile(`^([A-Z]{1,2}[0-9][A-Z0-9]?) ?([0-9][A-Z]{2})$`)

var (
	ErrPostCodeRequired = errors.New("post code is required")
	ErrInvalidPostCode  = errors.New("please enter a valid post code")
)

// NormalizePostCode validates a UK post code and returns it upper-cased with a
// single space between the outward and inward codes.
func NormalizePostCode(postCode string) (string, error) {
	pc := strings.ToUpper(strings.TrimSpace(postCode))
	if pc == "" {
		return "", ErrPostCodeRequired
	}
	m := postCodeRegexp.FindStringSubmatch(pc)
	if m == nil {
		return "", ErrInvalidPostCode
	}
	return m[1] + " " + m[2], nil
}

// SubmissionForm is the submission form as typed by the user. Every field is
// kept as entered so it can be re-validated on each change.
type SubmissionForm struct {
	PostCode         string `json:"postCode" yaml:"postCode"`
	SolarPanels      string `json:"solarPanels" yaml:"solarPanels"`
	PanelOrientation string `json:"panelOrientation" yaml:"panelOrientation"`
	PanelTilt        string `json:"panelTilt" yaml:"panelTilt"`
	Date             string `json:"date" yaml:"date"`
	WashingMachine   bool   `json:"washingMachine" yaml:"washingMachine"`
	TumbleDryer      bool   `json:"tumbleDryer" yaml:"tumbleDryer"`
}

// SubmissionInput is a validated submission.
type SubmissionInput struct {
	PostCode         string
	SolarPanels      int
	PanelOrientation float64
	PanelTilt        float64
	Date             time.Time
	WashingMachine   bool
	TumbleDryer      bool
}

// ValidationErrors maps a field name to a user facing message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// FormCheck is the result of validating a form that may still be in progress.
// Missing lists required fields that are empty; they block submission but do
// not produce a message.
type FormCheck struct {
	Input     SubmissionInput  `json:"-" yaml:"-"`
	Errors    ValidationErrors `json:"errors" yaml:"errors"`
	Missing   []string         `json:"missing" yaml:"missing"`
	CanSubmit bool             `json:"canSubmit" yaml:"canSubmit"`
}

// CheckSubmissionForm validates every field of the form.
func CheckSubmissionForm(form SubmissionForm, loc *time.Location) FormCheck {
	check := FormCheck{
		Errors:  ValidationErrors{},
		Missing: []string{},
	}
	in := &check.Input
	in.WashingMachine = form.WashingMachine
	in.TumbleDryer = form.TumbleDryer

	pc, err := NormalizePostCode(form.PostCode)
	switch {
	case errors.Is(err, ErrPostCodeRequired):
		check.Missing = append(check.Missing, FieldPostCode)
	case err != nil:
		check.Errors[FieldPostCode] = err.Error()
	default:
		in.PostCode = pc
	}

	if s := strings.TrimSpace(form.SolarPanels); s == "" {
		check.Missing = append(check.Missing, FieldSolarPanels)
	} else if n, err := strconv.Atoi(s); err != nil || n < 1 {
		check.Errors[FieldSolarPanels] = "number of solar panels must be a whole number of at least 1"
	} else {
		in.SolarPanels = n
	}

	parseDegrees := func(field, raw string, max float64, dst *float64) {
		s := strings.TrimSpace(raw)
		if s == "" {
			check.Missing = append(check.Missing, field)
			return
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !inDegreeRange(v, max) {
			check.Errors[field] = fmt.Sprintf("must be between 0 and %g degrees", max)
			return
		}
		*dst = v
	}
	parseDegrees(FieldPanelOrientation, form.PanelOrientation, 360, &in.PanelOrientation)
	parseDegrees(FieldPanelTilt, form.PanelTilt, 90, &in.PanelTilt)

	if s := strings.TrimSpace(form.Date); s == "" {
		check.Missing = append(check.Missing, FieldDate)
	} else if d, err := ParseSubmissionDate(s, loc); err != nil {
		check.Errors[FieldDate] = err.Error()
	} else {
		in.Date = d
	}

	check.CanSubmit = len(check.Errors) == 0 && len(check.Missing) == 0
	return check
}

// ParseSubmissionForm validates the form and returns the typed input. Missing
// fields are reported as errors here since the form is being submitted.
func ParseSubmissionForm(form SubmissionForm, loc *time.Location) (SubmissionInput, error) {
	check := CheckSubmissionForm(form, loc)
	if check.CanSubmit {
		return check.Input, nil
	}
	errs := ValidationErrors{}
	for k, v := range check.Errors {
		errs[k] = v
	}
	for _, f := range check.Missing {
		errs[f] = "required"
	}
	return SubmissionInput{}, errs
}

var submissionDateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSubmissionDate accepts the date formats a date/time picker produces.
// A bare date is taken as midnight.
func ParseSubmissionDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range submissionDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or YYYY-MM-DDTHH:MM", s)
}

// inDegreeRange reports whether v is within [0, max]. NaN is never in range.
func inDegreeRange(v, max float64) bool {
	return v >= 0 && v <= max
}

// Validate checks an already typed input against the same rules as the form.
func (s SubmissionInput) Validate() error {
	errs := ValidationErrors{}
	if pc, err := NormalizePostCode(s.PostCode); err != nil {
		errs[FieldPostCode] = err.Error()
	} else if pc != s.PostCode {
		errs[FieldPostCode] = "post code is not normalized"
	}
	if s.SolarPanels < 1 {
		errs[FieldSolarPanels] = "number of solar panels must be a whole number of at least 1"
	}
	if !inDegreeRange(s.PanelOrientation, 360) {
		errs[FieldPanelOrientation] = "must be between 0 and 360 degrees"
	}
	if !inDegreeRange(s.PanelTilt, 90) {
		errs[FieldPanelTilt] = "must be between 0 and 90 degrees"
	}
	if s.Date.IsZero() {
		errs[FieldDate] = "required"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SolarRequest is the body of POST /solardata/. The submission form fields are
// sent again as part of POST /submission/.
type SolarRequest struct {
	PostCode               string  `json:"post_code" yaml:"post_code"`
	Date                   string  `json:"date" yaml:"date"`
	PanelOrientation       float64 `json:"panel_orientation" yaml:"panel_orientation"`
	PanelTilt              float64 `json:"panel_tilt" yaml:"panel_tilt"`
	NumberOfSolarPanels    int     `json:"number_of_solar_panels" yaml:"number_of_solar_panels"`
	WashingMachineSelected bool    `json:"washing_machine_selected" yaml:"washing_machine_selected"`
	TumbleDryerSelected    bool    `json:"tumble_dryer_selected" yaml:"tumble_dryer_selected"`
}

// SolarRequest builds the wire request for the input.
func (s SubmissionInput) SolarRequest() SolarRequest {
	return SolarRequest{
		PostCode:               s.PostCode,
		Date:                   s.Date.Format(DateLayout),
		PanelOrientation:       s.PanelOrientation,
		PanelTilt:              s.PanelTilt,
		NumberOfSolarPanels:    s.SolarPanels,
		WashingMachineSelected: s.WashingMachine,
		TumbleDryerSelected:    s.TumbleDryer,
	}
}

// SubmissionRequest is the body of POST /submission/. Weather fields are sent
// at the top level and solar fields nested under "solar".
type SubmissionRequest struct {
	SolarRequest
	WeatherSnapshot
	Solar SolarEstimate `json:"solar" yaml:"solar"`
}

// SubmissionResult is what a successful submit produced.
type SubmissionResult struct {
	ID      string          `json:"id" yaml:"id"`
	Weather WeatherSnapshot `json:"weather" yaml:"weather"`
	Solar   SolarEstimate   `json:"solar" yaml:"solar"`
}
