package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/submission"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validFormBody = `{
	"postCode": "dd1 4hn",
	"solarPanels": "4",
	"panelOrientation": "180",
	"panelTilt": "35",
	"date": "2024-05-01T12:30",
	"washingMachine": true
}`

var validInput = types.SubmissionInput{
	PostCode:         "DD1 4HN",
	SolarPanels:      4,
	PanelOrientation: 180,
	PanelTilt:        35,
	Date:             time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	WashingMachine:   true,
}

func TestHandleDefaults(t *testing.T) {
	srv := newTestServer(t)
	srv.submitter.On("Defaults").Return(types.SubmissionForm{PostCode: "SW1A 1AA", SolarPanels: "10"})

	w := doJSON(srv.setupHandler(), "GET", "/api/defaults", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var form types.SubmissionForm
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &form))
	assert.Equal(t, "SW1A 1AA", form.PostCode)
	assert.Equal(t, "10", form.SolarPanels)
}

func TestHandleValidate(t *testing.T) {
	srv := newTestServer(t)

	t.Run("Partial", func(t *testing.T) {
		w := doJSON(srv.setupHandler(), "POST", "/api/validate", `{"postCode":"ABC","solarPanels":"0"}`)
		assert.Equal(t, http.StatusOK, w.Code)

		var check struct {
			Errors    map[string]string `json:"errors"`
			Missing   []string          `json:"missing"`
			CanSubmit bool              `json:"canSubmit"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
		assert.False(t, check.CanSubmit)
		assert.Equal(t, "please enter a valid post code", check.Errors[types.FieldPostCode])
		assert.Contains(t, check.Errors, types.FieldSolarPanels)
		assert.ElementsMatch(t, []string{types.FieldPanelOrientation, types.FieldPanelTilt, types.FieldDate}, check.Missing)
	})

	t.Run("Empty Post Code Has No Message", func(t *testing.T) {
		w := doJSON(srv.setupHandler(), "POST", "/api/validate", `{}`)
		var check struct {
			Errors  map[string]string `json:"errors"`
			Missing []string          `json:"missing"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
		assert.NotContains(t, check.Errors, types.FieldPostCode)
		assert.Contains(t, check.Missing, types.FieldPostCode)
	})

	t.Run("Valid", func(t *testing.T) {
		w := doJSON(srv.setupHandler(), "POST", "/api/validate", validFormBody)
		assert.JSONEq(t, `{"errors":{},"missing":[],"canSubmit":true}`, w.Body.String())
	})
}

func TestHandleSubmit(t *testing.T) {
	result := types.SubmissionResult{
		ID:      "42",
		Weather: types.WeatherSnapshot{Temperature: 14},
		Solar:   types.SolarEstimate{DailySolarOutput: 12},
	}

	t.Run("Success", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		srv.submitter.On("Submit", mock.Anything, validInput).Return(result, nil).Once()

		w := doJSON(srv.setupHandler(), "POST", "/api/submit", validFormBody)
		assert.Equal(t, http.StatusOK, w.Code)

		var res struct {
			ID       string `json:"id"`
			Redirect string `json:"redirect"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "42", res.ID)
		assert.Equal(t, "#/results/42", res.Redirect)

		sess, err := srv.store.Load(context.Background())
		require.NoError(t, err)
		latest, ok := sess.LatestSubmission()
		require.True(t, ok)
		assert.Equal(t, "42", latest.ID)
		assert.Equal(t, "DD1 4HN", latest.PostCode)
		srv.submitter.AssertExpectations(t)
	})

	t.Run("Not Logged In", func(t *testing.T) {
		srv := newTestServer(t)
		w := doJSON(srv.setupHandler(), "POST", "/api/submit", validFormBody)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		srv.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("Invalid Form", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		w := doJSON(srv.setupHandler(), "POST", "/api/submit", `{"postCode":"12345"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"canSubmit":false`)
		srv.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("Failure", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		srv.submitter.On("Submit", mock.Anything, validInput).Return(types.SubmissionResult{}, &submission.StepError{Step: "solar", Err: errors.New("boom")})

		w := doJSON(srv.setupHandler(), "POST", "/api/submit", validFormBody)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"error":"`+submission.ErrSubmissionFailed.Error()+`"}`, w.Body.String())

		sess, err := srv.store.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, sess.Submissions)
	})
}

func TestHandleResults(t *testing.T) {
	payload := types.ChartPayload{
		Date:             "2024-05-01",
		DailySolarOutput: 12.5,
		WMOptimalUsage:   types.UsageTimes{"2024-05-01 10:50"},
		HourlySolarProduction: []types.HourlyProduction{
			{Hour: types.ClockTime{Hour: 10}, Production: 200},
		},
		ApplianceConsumption: []types.ApplianceConsumption{
			{ApplianceName: types.ApplianceWashingMachine, Consumption: 50},
			{ApplianceName: types.ApplianceWashingMachine, Consumption: 60},
		},
	}

	t.Run("Success", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		srv.api.On("ChartData", mock.Anything, "42").Return(payload, nil)

		w := doJSON(srv.setupHandler(), "GET", "/api/results/42", "")
		assert.Equal(t, http.StatusOK, w.Code)

		var res resultsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "42", res.Summary.SubmissionID)
		assert.Equal(t, 12.5, res.Summary.DailySolarOutput)
		assert.Equal(t, []string{"10:00", "10:50", "11:00"}, res.Chart.Labels)
		require.Len(t, res.Chart.Datasets, 3)
		assert.Equal(t, []types.ChartPoint{{X: "10:50", Y: 50}, {X: "11:00", Y: 60}}, res.Chart.Datasets[1].Data)
	})

	t.Run("Invalid ID", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		w := doJSON(srv.setupHandler(), "GET", "/api/results/a.b", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		srv.api.AssertNotCalled(t, "ChartData", mock.Anything, mock.Anything)
	})

	t.Run("Not Found", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		srv.api.On("ChartData", mock.Anything, "404").Return(types.ChartPayload{}, &api.Error{Status: http.StatusNotFound})

		w := doJSON(srv.setupHandler(), "GET", "/api/results/404", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Upstream Error", func(t *testing.T) {
		srv := newTestServer(t)
		srv.login(t)
		srv.api.On("ChartData", mock.Anything, "42").Return(types.ChartPayload{}, errors.New("timeout"))

		w := doJSON(srv.setupHandler(), "GET", "/api/results/42", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"error":"failed to load results"}`, w.Body.String())
	})
}

func TestHandleSubmissions(t *testing.T) {
	srv := newTestServer(t)
	srv.login(t)

	w := doJSON(srv.setupHandler(), "GET", "/api/submissions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	ctx := context.Background()
	require.NoError(t, session.RecordSubmission(ctx, srv.store, types.SubmissionRef{ID: "1", PostCode: "SW1A 1AA"}))
	require.NoError(t, session.RecordSubmission(ctx, srv.store, types.SubmissionRef{ID: "2", PostCode: "M1 1AE"}))

	w = doJSON(srv.setupHandler(), "GET", "/api/submissions", "")
	var refs []types.SubmissionRef
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, "2", refs[0].ID)
	assert.Equal(t, "1", refs[1].ID)
}
