package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shouldiwash/shouldiwash/pkg/session/sessionmock"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWebHandler(t *testing.T) {
	testFS := fstest.MapFS{
		"index.html": {Data: []byte("<html>index</html>")},
		"app.js":     {Data: []byte("console.log('hello');")},
	}

	srv := newTestServer(t)
	mux := http.NewServeMux()
	fileServer := http.FileServer(http.FS(testFS))
	mux.Handle("/", srv.webHandler(testFS, fileServer))

	t.Run("Serve Existing File", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/app.js", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "console.log('hello');", w.Body.String())
	})

	t.Run("Serve Index on Root", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<html>index</html>", w.Body.String())
	})

	t.Run("Serve Index on Unknown Route", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/results/42", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<html>index</html>", w.Body.String())
	})

	t.Run("Well Known Not Found", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/.well-known/security.txt", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Cache Header", func(t *testing.T) {
		srv.webCacheDuration = time.Hour
		defer func() { srv.webCacheDuration = 0 }()
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	})
}

func TestEmbeddedDist(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupHandler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Should I Put My Washing On?")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestDevProxy(t *testing.T) {
	devServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("dev server response"))
	}))
	defer devServer.Close()

	srv := newTestServer(t)
	srv.devProxy = devServer.URL

	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev server response", w.Body.String())
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("Requires Session", func(t *testing.T) {
		srv := newTestServer(t)
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"not logged in"}`, w.Body.String())
		srv.api.AssertNotCalled(t, "UserProfile", mock.Anything)
	})

	t.Run("Requires JSON", func(t *testing.T) {
		srv := newTestServer(t)
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader("username=finn"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	})

	t.Run("Store Error", func(t *testing.T) {
		srv := newTestServer(t)
		store := &sessionmock.MockStore{}
		store.On("Load", mock.Anything).Return(types.Session{}, errors.New("disk on fire"))
		srv.sessions = store

		w := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/submissions", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		// status still works so the frontend can show the login screen
		w = httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(w, httptest.NewRequest("GET", "/api/auth/status", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"loggedIn":false}`, w.Body.String())
	})
}

func TestRunShutdown(t *testing.T) {
	srv := newTestServer(t)
	srv.listenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
