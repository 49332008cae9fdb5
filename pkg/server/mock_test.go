package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/stretchr/testify/mock"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) Login(ctx context.Context, creds types.Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) Register(ctx context.Context, reg types.Registration) error {
	args := m.Called(ctx, reg)
	return args.Error(0)
}

func (m *mockAPI) UserProfile(ctx context.Context) (types.Profile, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Profile), args.Error(1)
}

func (m *mockAPI) ChartData(ctx context.Context, submissionID string) (types.ChartPayload, error) {
	args := m.Called(ctx, submissionID)
	return args.Get(0).(types.ChartPayload), args.Error(1)
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, in types.SubmissionInput) (types.SubmissionResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(types.SubmissionResult), args.Error(1)
}

func (m *mockSubmitter) Defaults() types.SubmissionForm {
	args := m.Called()
	return args.Get(0).(types.SubmissionForm)
}

func (m *mockSubmitter) Location() *time.Location {
	return time.UTC
}

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	api       *mockAPI
	submitter *mockSubmitter
	store     *session.FileStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		api:       &mockAPI{},
		submitter: &mockSubmitter{},
		store:     session.NewFileStore(filepath.Join(t.TempDir(), "session.json"), ""),
	}
	ts.Server = &Server{
		api:        ts.api,
		submitter:  ts.submitter,
		sessions:   ts.store,
		listenAddr: ":8080",
		location:   time.UTC,
		now:        func() time.Time { return testNow },
	}
	return ts
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	if err := session.Login(context.Background(), ts.store, "finn", "abc123"); err != nil {
		t.Fatal(err)
	}
}
