package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/shouldiwash/shouldiwash/pkg/api"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// maxRequestBytes limits request bodies to 1MB
const maxRequestBytes = 1 << 20

// sessionMiddleware loads the device session and passes its token on to every
// remote API call made while handling the request.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("reqPath", r.URL.Path))

		allowNoSession := r.URL.Path == "/api/login" ||
			r.URL.Path == "/api/register" ||
			r.URL.Path == "/api/auth/status" ||
			r.URL.Path == "/api/validate" ||
			r.URL.Path == "/api/defaults"

		if r.Method == http.MethodPost {
			// a cross site form post cannot set a JSON content type without a preflight
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				writeJSONError(w, "content type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		}

		sess, err := s.sessions.Load(ctx)
		switch {
		case err == nil:
			ctx = api.WithToken(ctx, sess.Token)
			ctx = context.WithValue(ctx, sessionContextKey, sess)
			ctx = log.WithAttrs(ctx, slog.String("username", sess.Username))
		case errors.Is(err, session.ErrNoSession):
			if !allowNoSession {
				writeJSONError(w, "not logged in", http.StatusUnauthorized)
				return
			}
		default:
			log.Ctx(ctx).ErrorContext(ctx, "failed to load session", slog.Any("error", err))
			if !allowNoSession {
				writeJSONError(w, "failed to load session", http.StatusInternalServerError)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		writeJSONError(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var creds types.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	if err := creds.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.api.Login(ctx, creds)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "login failed", slog.String("username", creds.Username), slog.Any("error", err))
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			writeJSONError(w, apiErr.Message, http.StatusUnauthorized)
			return
		}
		writeJSONError(w, api.LoginFailedMessage, http.StatusBadGateway)
		return
	}

	if err := session.Login(ctx, s.sessions, creds.Username, token); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save session", slog.Any("error", err))
		writeJSONError(w, "failed to save session", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "logged in", slog.String("username", creds.Username))

	writeJSON(w, authStatus{LoggedIn: true, Username: creds.Username}, http.StatusOK)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reg types.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	if err := reg.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.api.Register(ctx, reg); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "registration failed", slog.String("username", reg.Username), slog.Any("error", err))
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			writeJSON(w, struct {
				Error  string              `json:"error"`
				Fields map[string][]string `json:"fields,omitempty"`
			}{
				Error:  "registration failed",
				Fields: apiErr.Fields,
			}, http.StatusBadRequest)
			return
		}
		writeJSONError(w, "registration failed, please try again", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.sessions.Clear(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to clear session", slog.Any("error", err))
		writeJSONError(w, "failed to log out", http.StatusInternalServerError)
		return
	}
	writeJSON(w, authStatus{}, http.StatusOK)
}

type authStatus struct {
	LoggedIn bool   `json:"loggedIn"`
	Username string `json:"username,omitempty"`
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := r.Context().Value(sessionContextKey).(types.Session)
	if !ok {
		writeJSON(w, authStatus{}, http.StatusOK)
		return
	}
	writeJSON(w, authStatus{LoggedIn: true, Username: sess.Username}, http.StatusOK)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := s.api.UserProfile(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch profile", slog.Any("error", err))
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			writeJSONError(w, "session expired, please log in again", http.StatusUnauthorized)
			return
		}
		writeJSONError(w, "failed to load profile", http.StatusBadGateway)
		return
	}
	writeJSON(w, profile, http.StatusOK)
}
