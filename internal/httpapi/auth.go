package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"crowdstage/internal/session"
	"crowdstage/internal/validation"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type recoveryRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type profileImageRequest struct {
	URL string `json:"url"`
}

type registrationOptions struct {
	Genres    []string `json:"genres"`
	Socials   []string `json:"socials"`
	Platforms []string `json:"platforms"`
}

type loginResponse struct {
	SessionID string        `json:"session_id"`
	Session   session.State `json:"session"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password are required"})
		return
	}

	state, err := s.sessions.Login(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set(SessionHeader, state.ID)
	writeJSON(w, http.StatusOK, loginResponse{SessionID: state.ID, Session: state})
}

// handleLogout always succeeds; a session that is already gone is logged out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.sessions.Logout(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.sessions.Current(r.Context(), sessionID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	var req profileImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		writeError(w, r, &validation.Error{Field: "url", Message: "profile image must be an absolute URL"})
		return
	}

	state, err := s.sessions.SetProfileImage(r.Context(), sessionID(r), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRegister signs up a fan or an artist. The form is checked before
// it is forwarded.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req validation.Registration
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	if err := s.accounts.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRegistrationOptions(w http.ResponseWriter, r *http.Request) {
	var opts registrationOptions

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		opts.Genres, err = s.accounts.Genres(ctx)
		return err
	})
	g.Go(func() (err error) {
		opts.Socials, err = s.accounts.Socials(ctx)
		return err
	})
	g.Go(func() (err error) {
		opts.Platforms, err = s.accounts.Platforms(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(mux.Vars(r)["username"])
	available, err := s.accounts.UsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "available": available})
}

func (s *Server) handlePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, &validation.Error{Field: "email", Message: "email is required"})
		return
	}

	if err := s.accounts.RequestPasswordRecovery(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	if req.Token == "" || len(req.Password) < 8 {
		writeError(w, r, &validation.Error{Field: "password", Message: "a reset token and a password of at least 8 characters are required"})
		return
	}

	if err := s.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
