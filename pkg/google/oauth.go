package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const (
	// ClientSecretsFile is the downloaded Google API credentials file, kept
	// in the config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the user's Google token (access and refresh).
	TokenFile = "google_token.json"

	// LocalhostAuthPort is where the local server waits for the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// Scopes are what the mirror needs: write events, read the calendar list.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// ErrNotAuthorized means no Google token has been saved yet.
var ErrNotAuthorized = errors.New("google calendar is not authorized, run `onesheet calendar auth` first")

// OAuthConfig reads the client secrets in dir and pins the redirect to the
// local callback port.
func OAuthConfig(dir string, logger *zap.Logger) (*oauth2.Config, error) {
	secrets := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(secrets)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", secrets, err)
	}
	cfg, err := goauth.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	cfg.RedirectURL = localRedirect(cfg.RedirectURL, logger)
	return cfg, nil
}

// localRedirect forces a localhost or out-of-band redirect onto
// LocalhostAuthPort, which is where the callback server listens.
func localRedirect(redirect string, logger *zap.Logger) string {
	if redirect == "urn:ietf:wg:oauth:2.0:oob" || redirect == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		logger.Warn("could not parse redirect url, using it as is", zap.String("redirect", redirect), zap.Error(err))
		return redirect
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		logger.Warn("redirect url is not a localhost callback", zap.String("redirect", redirect))
		return redirect
	}
	if u.Port() != LocalhostAuthPort {
		u.Host = net.JoinHostPort(host, LocalhostAuthPort)
	}
	return u.String()
}

// Authorize runs the browser consent flow and saves a fresh token in dir,
// replacing any previous one. The consent URL is written to out.
func Authorize(ctx context.Context, dir string, out io.Writer, logger *zap.Logger) error {
	cfg, err := OAuthConfig(dir, logger)
	if err != nil {
		return err
	}
	tokenFile := filepath.Join(dir, TokenFile)
	if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file %s: %w", tokenFile, err)
	}
	tok, err := tokenFromWeb(ctx, cfg, out, logger)
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	return saveToken(tokenFile, tok)
}

// HTTPClient returns a client authorized with the saved token. Refreshed
// tokens are written back to dir.
func HTTPClient(ctx context.Context, dir string, logger *zap.Logger) (*http.Client, error) {
	cfg, err := OAuthConfig(dir, logger)
	if err != nil {
		return nil, err
	}
	tokenFile := filepath.Join(dir, TokenFile)
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	src := &savingSource{
		base:   cfg.TokenSource(ctx, tok),
		last:   tok,
		path:   tokenFile,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingSource persists a token whenever the underlying source hands out a
// different one.
type savingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Warn("could not save refreshed google token", zap.Error(err))
		} else {
			s.logger.Debug("saved refreshed google token", zap.String("path", s.path))
		}
		s.last = tok
	}
	return tok, nil
}

// tokenFromWeb runs the authorization code flow through a local server.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, out io.Writer, logger *zap.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize onesheet:\n%s\n", authURL)
	logger.Info("waiting for authorization code", zap.String("redirect", cfg.RedirectURL))

	timer := time.NewTimer(authTimeout)
	defer timer.Stop()

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-timer.C:
		return nil, errors.New("authorization timed out, please try again")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes the token, readable by the owner only.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
