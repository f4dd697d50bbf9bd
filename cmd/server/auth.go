package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/session"
)

type authService struct {
	email        string
	passwordHash string
	sessions     *session.Store
}

func newAuthService(email, password string, sessions *session.Store) *authService {
	a := &authService{email: strings.TrimSpace(email), sessions: sessions}
	if password != "" {
		a.passwordHash = hashPassword(password)
	}
	return a
}

// enabled reports whether admin credentials are configured. Without them
// every API route is open.
func (a *authService) enabled() bool {
	return a.email != "" && a.passwordHash != ""
}

func (a *authService) validateCredentials(email, password string) bool {
	if !a.enabled() {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(strings.ToLower(a.email))) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(hashPassword(password)), []byte(a.passwordHash)) == 1
	return emailOK && passwordOK
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.auth.enabled() {
		s.writeError(w, r, apperr.Unauthorized("authentication is not configured"))
		return
	}
	if !s.auth.validateCredentials(req.Email, req.Password) {
		s.writeError(w, r, apperr.Unauthorized("invalid credentials"))
		return
	}

	sess := s.auth.sessions.Create(s.auth.email)
	s.logger.InfoContext(r.Context(), "admin logged in", "subject", sess.Subject)
	writeJSON(w, http.StatusCreated, loginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.auth.sessions.Revoke(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}
		if _, ok := s.auth.sessions.Lookup(token); !ok {
			s.writeError(w, r, apperr.Unauthorized("session is invalid or expired"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
