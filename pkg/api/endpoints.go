package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// LoginFailedMessage is shown for any failed login that the server did not
// explain. The same message covers both fields so it does not reveal which
// one was wrong.
const LoginFailedMessage = "Login failed. Please check your credentials."

type loginResult struct {
	Key string `json:"key"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}
	req, err := c.newPostJSONRequest(ctx, "login/", creds)
	if err != nil {
		return "", err
	}

	var res loginResult
	if err := c.doRequest(req, "login", &res); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			msg := LoginFailedMessage
			if nfe := apiErr.Fields["non_field_errors"]; len(nfe) > 0 {
				msg = strings.Join(nfe, " ")
			}
			return "", &Error{Status: apiErr.Status, Message: msg, Fields: apiErr.Fields}
		}
		return "", err
	}
	if res.Key == "" {
		return "", errors.New("login response missing token")
	}
	log.Ctx(ctx).DebugContext(ctx, "login success", slog.String("username", creds.Username))
	return res.Key, nil
}

// Register creates a new account. It does not log in.
func (c *Client) Register(ctx context.Context, reg types.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	req, err := c.newPostJSONRequest(ctx, "register/", reg)
	if err != nil {
		return err
	}
	if err := c.doRequest(req, "register", nil); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "user registered", slog.String("username", reg.Username))
	return nil
}

// WeatherData returns current weather for the post code.
func (c *Client) WeatherData(ctx context.Context, postCode string) (types.WeatherSnapshot, error) {
	req, err := c.newPostJSONRequest(ctx, "weatherdata/", struct {
		PostCode string `json:"post_code"`
	}{PostCode: postCode})
	if err != nil {
		return types.WeatherSnapshot{}, err
	}
	var res types.WeatherSnapshot
	if err := c.doRequest(req, "weatherdata", &res); err != nil {
		return types.WeatherSnapshot{}, err
	}
	return res, nil
}

// SolarData returns the solar estimate and optimal usage windows for the
// submission.
func (c *Client) SolarData(ctx context.Context, in types.SolarRequest) (types.SolarEstimate, error) {
	req, err := c.newPostJSONRequest(ctx, "solardata/", in)
	if err != nil {
		return types.SolarEstimate{}, err
	}
	var res types.SolarEstimate
	if err := c.doRequest(req, "solardata", &res); err != nil {
		return types.SolarEstimate{}, err
	}
	return res, nil
}

type submitResult struct {
	ID types.FlexString `json:"id"`
}

// Submit stores the submission and returns its identifier.
func (c *Client) Submit(ctx context.Context, body types.SubmissionRequest) (string, error) {
	req, err := c.newPostJSONRequest(ctx, "submission/", body)
	if err != nil {
		return "", err
	}
	var res submitResult
	if err := c.doRequest(req, "submission", &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", errors.New("submission response missing id")
	}
	return res.ID.String(), nil
}

// ValidSubmissionID reports whether id can be used in a chart data path.
func ValidSubmissionID(id string) bool {
	return submissionIDRegexp.MatchString(id)
}

// ChartData returns the aggregate chart payload for a submission.
func (c *Client) ChartData(ctx context.Context, submissionID string) (types.ChartPayload, error) {
	if tokenFromContext(ctx) == "" {
		return types.ChartPayload{}, ErrNotLoggedIn
	}
	if !ValidSubmissionID(submissionID) {
		return types.ChartPayload{}, fmt.Errorf("invalid submission id: %q", submissionID)
	}
	req, err := c.newGetRequest(ctx, "submission_chart_data/"+submissionID+"/")
	if err != nil {
		return types.ChartPayload{}, err
	}
	var res types.ChartPayload
	if err := c.doRequest(req, "submission_chart_data", &res); err != nil {
		return types.ChartPayload{}, err
	}
	return res, nil
}

// UserProfile returns the logged in user's profile.
func (c *Client) UserProfile(ctx context.Context) (types.Profile, error) {
	if tokenFromContext(ctx) == "" {
		return types.Profile{}, ErrNotLoggedIn
	}
	req, err := c.newGetRequest(ctx, "userprofile/")
	if err != nil {
		return types.Profile{}, err
	}
	var res types.Profile
	if err := c.doRequest(req, "userprofile", &res); err != nil {
		return types.Profile{}, err
	}
	return res, nil
}
