// Package auth logs users in to ONES and reacts to session expiry.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/model"
	"github.com/harrisonrobin/onesheet/pkg/session"
	"github.com/harrisonrobin/onesheet/pkg/signal"
	"go.uber.org/zap"
)

const (
	msgInvalidCredentials = "invalid email or password, please try again"
	msgBadLogin           = "invalid request, please check the email and password format"
	msgLoginFailed        = "login failed, please try again later"
)

// Redirector sends the user to login after the session expired.
type Redirector interface {
	RedirectToLogin(preserveState bool)
}

// Resumer hands back the location saved before the last redirect.
type Resumer interface {
	ResumeLocation() (string, bool)
}

// Service is the login boundary.
type Service struct {
	endpoint string
	http     *http.Client
	store    *session.Store
	redirect Redirector
	resume   Resumer
	logger   *zap.Logger
	unsub    func()
}

type Option func(*Service)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRedirector sets who handles the login redirect on session expiry.
// The dispatch.Dispatcher satisfies it, and Resumer as well.
func WithRedirector(r Redirector) Option {
	return func(s *Service) {
		s.redirect = r
		if res, ok := r.(Resumer); ok && s.resume == nil {
			s.resume = res
		}
	}
}

// NewService creates a Service posting credentials to endpoint and keeping
// the resulting session in store. When bus is non-nil the service redirects
// to login, preserving the current location, whenever the session expires.
func NewService(endpoint string, store *session.Store, bus *signal.Bus, opts ...Option) *Service {
	s := &Service{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if bus != nil {
		s.unsub = bus.Subscribe(signal.SessionExpired, s.onSessionExpired)
	}
	return s
}

// Close stops listening for session expiry.
func (s *Service) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Service) onSessionExpired() {
	// The store clears itself on the same signal; make sure it is gone
	// even when it was built without the bus.
	if s.store.IsAuthenticated() {
		s.store.Logout()
	}
	if s.redirect != nil {
		s.redirect.RedirectToLogin(true)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Login exchanges email and password for a session and stores it.
func (s *Service) Login(ctx context.Context, email, password string) (*session.Record, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.NewBusiness("email must not be empty")
	}
	if password == "" {
		return nil, apperr.NewBusiness("password must not be empty")
	}

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, apperr.NewBusiness("could not build login request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.NewBusiness("login request is misconfigured")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("login transport failure", zap.Error(err))
		return nil, apperr.NewNetwork("", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.NewNetwork("", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return nil, classifyLogin(resp.StatusCode, eb.Message)
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, apperr.NewBusiness(msgLoginFailed)
	}
	rec := session.Record{UserID: lr.User.UUID, Token: lr.Token, User: &lr.User}
	if !rec.Complete() {
		return nil, apperr.NewBusiness(msgLoginFailed)
	}
	if err := s.store.Save(rec); err != nil {
		return nil, apperr.NewSystem(0, "could not save login information", err)
	}
	s.logger.Info("logged in", zap.String("user_id", rec.UserID), zap.String("email", rec.User.Email))
	return &rec, nil
}

// classifyLogin maps a failed login response. Server errors are reported as
// Business here so the login form shows them directly.
func classifyLogin(status int, message string) *apperr.Error {
	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = msgInvalidCredentials
		}
		return apperr.NewAuth(status, message)
	case status == http.StatusBadRequest:
		if message == "" {
			message = msgBadLogin
		}
		return apperr.NewBusinessStatus(status, message)
	case status >= 500:
		return apperr.NewBusinessStatus(status, apperr.MsgServer)
	default:
		if message == "" {
			message = fmt.Sprintf("login failed (status %d)", status)
		}
		return apperr.NewBusinessStatus(status, message)
	}
}

// Logout drops the session and broadcasts the logout signal.
func (s *Service) Logout() {
	s.store.Logout()
	s.logger.Info("logged out")
}

// CurrentUser returns the logged-in user, or nil.
func (s *Service) CurrentUser() *model.User {
	if rec := s.store.Current(); rec != nil {
		return rec.User
	}
	return nil
}

// IsAuthenticated reports whether a session is held.
func (s *Service) IsAuthenticated() bool {
	return s.store.IsAuthenticated()
}

// CompleteLogin returns the location saved before the last expiry redirect
// and forgets it. An empty result means the default landing.
func (s *Service) CompleteLogin() string {
	if s.resume == nil {
		return ""
	}
	loc, ok := s.resume.ResumeLocation()
	if !ok {
		return ""
	}
	return loc
}
