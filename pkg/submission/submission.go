package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// ErrSubmissionFailed is the message shown to the user when any step of a
// submission fails. The underlying error is logged.
var ErrSubmissionFailed = errors.New("error submitting data, please try again")

// API is the subset of the remote API a submission needs.
type API interface {
	WeatherData(ctx context.Context, postCode string) (types.WeatherSnapshot, error)
	SolarData(ctx context.Context, in types.SolarRequest) (types.SolarEstimate, error)
	Submit(ctx context.Context, body types.SubmissionRequest) (string, error)
}

// StepError records which step of the sequence failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is lets callers match any step failure against ErrSubmissionFailed.
func (e *StepError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

// Submitter runs the weather, solar and submission calls in order.
type Submitter struct {
	api      API
	defaults types.SubmissionForm
	location *time.Location
}

// New returns a Submitter using api and the given form defaults. Dates are
// read in the local time zone.
func New(api API, defaults types.SubmissionForm) *Submitter {
	return &Submitter{api: api, defaults: defaults, location: time.Local}
}

// Defaults returns the form as it should be shown before the user types.
func (s *Submitter) Defaults() types.SubmissionForm {
	return s.defaults
}

// Location is the time zone submission dates are entered in.
func (s *Submitter) Location() *time.Location {
	return s.location
}

// Submit fetches the weather for the post code, then the solar estimate, then
// records the submission with both merged in. A failure stops the sequence and
// later calls are never made.
func (s *Submitter) Submit(ctx context.Context, in types.SubmissionInput) (types.SubmissionResult, error) {
	if err := in.Validate(); err != nil {
		return types.SubmissionResult{}, err
	}
	ctx = log.WithAttrs(ctx, slog.String("postCode", in.PostCode))

	weather, err := s.api.WeatherData(ctx, in.PostCode)
	if err != nil {
		return types.SubmissionResult{}, s.fail(ctx, "weather", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched weather", slog.Float64("temperature", weather.Temperature))

	solarReq := in.SolarRequest()
	solar, err := s.api.SolarData(ctx, solarReq)
	if err != nil {
		return types.SubmissionResult{}, s.fail(ctx, "solar", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched solar estimate", slog.Float64("dailySolarOutput", solar.DailySolarOutput))

	id, err := s.api.Submit(ctx, types.SubmissionRequest{
		SolarRequest:    solarReq,
		WeatherSnapshot: weather,
		Solar:           solar,
	})
	if err != nil {
		return types.SubmissionResult{}, s.fail(ctx, "submit", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "submitted", slog.String("submissionID", id))

	return types.SubmissionResult{
		ID:      id,
		Weather: weather,
		Solar:   solar,
	}, nil
}

func (s *Submitter) fail(ctx context.Context, step string, err error) error {
	log.Ctx(ctx).ErrorContext(ctx, "submission step failed", slog.String("step", step), slog.Any("error", err))
	return &StepError{Step: step, Err: err}
}
