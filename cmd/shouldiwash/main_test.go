package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/submission"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// fakeAPI mimics the remote API closely enough to drive every command.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	auth  map[string]string
}

func (f *fakeAPI) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.auth[r.URL.Path] = r.Header.Get("Authorization")
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var creds types.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string][]string{"non_field_errors": {"Unable to log in with provided credentials."}})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"key": "tok-123"})
	})
	mux.HandleFunc("POST /api/register/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var reg types.Registration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		if reg.Username == "taken" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string][]string{"username": {"A user with that username already exists."}})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"username": reg.Username})
	})
	mux.HandleFunc("GET /api/userprofile/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		json.NewEncoder(w).Encode(types.Profile{Username: "finn", Email: "finn@example.com"})
	})
	mux.HandleFunc("POST /api/weatherdata/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Write([]byte(`{"temperature":14.5,"cloud_cover":"40","wind_speed":3,"wind_direction":180,"humidity":70,"precipitation":0}`))
	})
	mux.HandleFunc("POST /api/solardata/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Write([]byte(`{"solar_altitude":40,"solar_azimuth":180,"daily_solar_output":12.5,"optimal_time":"2024-05-01 11:00","optimal_power":900,"wm_optimal_usage":["2024-05-01 10:50"],"td_optimal_usage":[]}`))
	})
	mux.HandleFunc("POST /api/submission/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42}`))
	})
	mux.HandleFunc("GET /api/submission_chart_data/{id}/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not found."}`))
			return
		}
		w.Write([]byte(`{
			"date": "2024-05-01",
			"daily_solar_output": 12.5,
			"optimal_time": "2024-05-01 11:00",
			"wm_optimal_usage": "2024-05-01 10:50",
			"td_optimal_usage": null,
			"hourly_solar_production": [{"hour": 10, "production": 200}, {"hour": 11, "production": 300}],
			"appliance_consumption": [
				{"appliance_name": "washing_machine", "consumption": 50},
				{"appliance_name": "washing_machine", "consumption": 60}
			]
		}`))
	})
	return mux
}

func (f *fakeAPI) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type testEnv struct {
	*env
	fake  *fakeAPI
	out   *bytes.Buffer
	store *session.FileStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := &fakeAPI{auth: map[string]string{}}
	ts := httptest.NewServer(fake.handler(t))
	t.Cleanup(ts.Close)

	client := api.New(ts.URL+"/api", 5*time.Second)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"), "")
	out := &bytes.Buffer{}
	return &testEnv{
		env: &env{
			api:       client,
			sessions:  store,
			submitter: submission.New(client, submission.DefaultForm()),
			in:        strings.NewReader(""),
			out:       out,
			format:    "text",
			now:       func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
		},
		fake:  fake,
		out:   out,
		store: store,
	}
}

func validForm() types.SubmissionForm {
	return types.SubmissionForm{
		PostCode:         "DD1 4HN",
		SolarPanels:      "4",
		PanelOrientation: "180",
		PanelTilt:        "35",
		Date:             "2024-05-01T12:30",
		WashingMachine:   true,
	}
}

func TestLoginLogout(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, runLogin(ctx, e.env, types.Credentials{Username: "finn", Password: "hunter2"}))
	assert.Equal(t, "Logged in as finn\n", e.out.String())

	token, err := session.Token(ctx, e.store)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	e.out.Reset()
	require.NoError(t, runLogout(ctx, e.env))
	assert.Equal(t, "Logged out\n", e.out.String())
	_, err = e.store.Load(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestLoginPasswordFromStdin(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.in = strings.NewReader("hunter2\n")

	require.NoError(t, runLogin(ctx, e.env, types.Credentials{Username: "finn"}))
	_, err := session.Token(ctx, e.store)
	require.NoError(t, err)
}

func TestLoginRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	err := runLogin(ctx, e.env, types.Credentials{Username: "finn", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, "Unable to log in with provided credentials.", userMessage(err))

	_, err = e.store.Load(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)

	t.Run("Missing Username", func(t *testing.T) {
		err := runLogin(ctx, e.env, types.Credentials{})
		assert.Equal(t, "username is required", userMessage(err))
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, runRegister(ctx, e.env, types.Registration{Username: "finn", Email: "finn@example.com", Password: "hunter2"}))
	assert.Contains(t, e.out.String(), "Registered finn")

	err := runRegister(ctx, e.env, types.Registration{Username: "taken", Email: "t@example.com", Password: "pw"})
	assert.Equal(t, "registration failed: username: A user with that username already exists.", userMessage(err))
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	err := runProfile(ctx, e.env)
	assert.ErrorIs(t, err, api.ErrNotLoggedIn)
	assert.Empty(t, e.fake.called(), "no request without a session")

	require.NoError(t, session.Login(ctx, e.store, "finn", "tok-123"))
	e.format = "yaml"
	require.NoError(t, runProfile(ctx, e.env))

	var profile map[string]string
	require.NoError(t, yaml.Unmarshal(e.out.Bytes(), &profile))
	assert.Equal(t, "finn@example.com", profile["email"])
	assert.Equal(t, "Token tok-123", e.fake.auth["/api/userprofile/"])
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, runValidate(ctx, e.env, validForm()))
	assert.Equal(t, "Ready to submit\n", e.out.String())

	e.out.Reset()
	form := validForm()
	form.PostCode = "12345"
	form.PanelTilt = ""
	err := runValidate(ctx, e.env, form)
	require.Error(t, err)
	assert.Contains(t, e.out.String(), "please enter a valid post code")
	assert.Contains(t, e.out.String(), "panel_tilt:")
	assert.Empty(t, e.fake.called())
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	require.NoError(t, session.Login(ctx, e.store, "finn", "tok-123"))

	require.NoError(t, runSubmit(ctx, e.env, validForm()))
	assert.Equal(t, []string{
		"POST /api/weatherdata/",
		"POST /api/solardata/",
		"POST /api/submission/",
		"GET /api/submission_chart_data/42/",
	}, e.fake.called())
	assert.Equal(t, "Token tok-123", e.fake.auth["/api/submission/"])

	out := e.out.String()
	assert.Contains(t, out, "Submitted 42")
	assert.Contains(t, out, "Washing Machine Consumption (Wh)")
	assert.Regexp(t, `10:50\s+-\s+50\.00`, out)

	sess, err := e.store.Load(ctx)
	require.NoError(t, err)
	latest, ok := sess.LatestSubmission()
	require.True(t, ok)
	assert.Equal(t, "42", latest.ID)
	assert.Equal(t, "DD1 4HN", latest.PostCode)
}

func TestSubmitLoggedOut(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, runSubmit(ctx, e.env, validForm()))
	assert.Len(t, e.fake.called(), 3)
	assert.Empty(t, e.fake.auth["/api/weatherdata/"])
	assert.Contains(t, e.out.String(), "Log in to see the chart")
}

func TestSubmitInvalid(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	form := validForm()
	form.SolarPanels = "0"
	err := runSubmit(ctx, e.env, form)

	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, userMessage(err), types.FieldSolarPanels)
	assert.Empty(t, e.fake.called())
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	err := runResults(ctx, e.env, "", "")
	assert.Equal(t, "no submissions from this device, pass --id", userMessage(err))

	require.NoError(t, session.Login(ctx, e.store, "finn", "tok-123"))
	require.NoError(t, session.RecordSubmission(ctx, e.store, types.SubmissionRef{ID: "42"}))

	t.Run("Latest", func(t *testing.T) {
		e.out.Reset()
		e.format = "json"
		require.NoError(t, runResults(ctx, e.env, "", ""))

		var res resultsOutput
		require.NoError(t, json.Unmarshal(e.out.Bytes(), &res))
		assert.Equal(t, "42", res.Summary.SubmissionID)
		assert.Equal(t, []string{"10:00", "10:50", "11:00"}, res.Chart.Labels)
	})

	t.Run("Not Found", func(t *testing.T) {
		err := runResults(ctx, e.env, "7", "")
		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	})

	t.Run("Export", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"chart.xlsx", "chart.pdf", "chart.json"} {
			path := filepath.Join(dir, name)
			require.NoError(t, runResults(ctx, e.env, "42", path))
			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.NotZero(t, info.Size(), name)
		}

		err := runResults(ctx, e.env, "42", filepath.Join(dir, "chart.png"))
		assert.Contains(t, userMessage(err), "unknown export format")
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	err := runHistory(ctx, e.env)
	assert.ErrorIs(t, err, session.ErrNoSession)

	require.NoError(t, session.Login(ctx, e.store, "finn", "tok-123"))
	require.NoError(t, runHistory(ctx, e.env))
	assert.Equal(t, "No submissions yet\n", e.out.String())

	require.NoError(t, session.RecordSubmission(ctx, e.store, types.SubmissionRef{ID: "1", PostCode: "SW1A 1AA"}))
	require.NoError(t, session.RecordSubmission(ctx, e.store, types.SubmissionRef{ID: "2", PostCode: "M1 1AE"}))

	e.out.Reset()
	require.NoError(t, runHistory(ctx, e.env))
	lines := strings.Split(strings.TrimSpace(e.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2 "))
	assert.True(t, strings.HasPrefix(lines[2], "1 "))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "not logged in, run `shouldiwash login` first", userMessage(api.ErrNotLoggedIn))
	assert.Equal(t, submission.ErrSubmissionFailed.Error(), userMessage(&submission.StepError{Step: "weather", Err: errors.New("boom")}))
	assert.Equal(t, "something went wrong, please try again", userMessage(errors.New("dial tcp: refused")))
	assert.Equal(t, "something went wrong, please try again", userMessage(&api.Error{Status: 500, Message: "stack trace"}))
}

func TestParseOptionalBool(t *testing.T) {
	b, err := parseOptionalBool("washing-machine", "")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = parseOptionalBool("washing-machine", "false")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, *b)

	b, err = parseOptionalBool("tumble-dryer", "true")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, *b)

	_, err = parseOptionalBool("tumble-dryer", "maybe")
	assert.Equal(t, `invalid value "maybe" for --tumble-dryer, expected true or false`, userMessage(err))
}
