package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shouldiwash/shouldiwash/pkg/common"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/shouldiwash/shouldiwash/web"
)

type contextKey string

const sessionContextKey contextKey = "session"

// API is the part of the remote API the dashboard calls directly.
type API interface {
	Login(ctx context.Context, creds types.Credentials) (string, error)
	Register(ctx context.Context, reg types.Registration) error
	UserProfile(ctx context.Context) (types.Profile, error)
	ChartData(ctx context.Context, submissionID string) (types.ChartPayload, error)
}

// Submitter runs the submission sequence.
type Submitter interface {
	Submit(ctx context.Context, in types.SubmissionInput) (types.SubmissionResult, error)
	Defaults() types.SubmissionForm
	Location() *time.Location
}

// Server is the local dashboard. It serves the web frontend and a small JSON
// API on top of the remote API and the device session.
type Server struct {
	api       API
	submitter Submitter
	sessions  session.Store

	listenAddr       string
	devProxy         string
	httpServer       *http.Server
	serverName       string
	webCacheDuration time.Duration
	location         *time.Location
	now              func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(a API, sub Submitter, sessions session.Store) *Server {
	srv := &Server{
		api:        a,
		submitter:  sub,
		sessions:   sessions,
		serverName: common.UserAgent(),
		now:        time.Now,
	}

	// the dashboard holds the session token so it only listens locally by default
	listenAddr := lflag.String("http-listen", "127.0.0.1:8080", "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	webCacheDuration := lflag.Duration("web-cache-duration", 0, "Duration to cache web files (e.g. 1h, 5m). 0 means no cache.")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		srv.webCacheDuration = *webCacheDuration
		srv.location = sub.Location()
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/login", s.handleLogin)
	apiMux.HandleFunc("POST /api/register", s.handleRegister)
	apiMux.HandleFunc("POST /api/logout", s.handleLogout)
	apiMux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	apiMux.HandleFunc("GET /api/profile", s.handleProfile)
	apiMux.HandleFunc("GET /api/defaults", s.handleDefaults)
	apiMux.HandleFunc("POST /api/validate", s.handleValidate)
	apiMux.HandleFunc("POST /api/submit", s.handleSubmit)
	apiMux.HandleFunc("GET /api/results/{id}", s.handleResults)
	apiMux.HandleFunc("GET /api/submissions", s.handleSubmissions)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.sessionMiddleware(apiMux))

	// serve the web frontend, either from the embedded filesystem or from the dev server
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	} else {
		distFS, err := fs.Sub(web.DistFS, "dist")
		if err != nil {
			panic(fmt.Errorf("failed to get web dist fs: %w", err))
		}
		fileServer := http.FileServer(http.FS(distFS))
		mux.Handle("/", s.webHandler(distFS, fileServer))
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.revisionMiddleware(s.metricsMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

// getSession returns the session loaded by sessionMiddleware.
func (s *Server) getSession(r *http.Request) types.Session {
	if sess, ok := r.Context().Value(sessionContextKey).(types.Session); ok {
		return sess
	}
	// we want to have a stack trace when this happens
	panic("no session in context")
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting dashboard", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, struct {
		Error string `json:"error"`
	}{Error: msg}, code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) webHandler(dir fs.FS, h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Default to serving index.html for unknown paths (SPA)
		if r.URL.Path != "/" {
			f, err := dir.Open(strings.TrimPrefix(r.URL.Path, "/"))
			if err == nil {
				f.Close()
			} else if errors.Is(err, fs.ErrNotExist) {
				if strings.HasPrefix(r.URL.Path, "/.well-known/") {
					// we don't write JSON here because we don't know what file type is expected
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				r.URL.Path = "/"
			} else {
				log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to open file", "error", err)
				// we don't write JSON here because we don't know what file type is expected
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		if s.webCacheDuration > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.webCacheDuration.Seconds())))
		}

		h.ServeHTTP(w, r)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
