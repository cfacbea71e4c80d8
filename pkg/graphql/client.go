// Package graphql is the authenticated client for the ONES GraphQL endpoint.
// Every failure it returns is an *apperr.Error.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"github.com/harrisonrobin/onesheet/pkg/retry"
	"github.com/harrisonrobin/onesheet/pkg/signal"
	"go.uber.org/zap"
)

const (
	HeaderUserID    = "Ones-User-Id"
	HeaderAuthToken = "Ones-Auth-Token"

	maxBodyBytes = 8 << 20
)

// Credentials supplies the header pair for outgoing calls. ok is false
// when nobody is logged in, in which case no auth headers are sent.
type Credentials interface {
	Credentials() (userID, token string, ok bool)
}

// Client sends query and mutation documents to one endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	creds    Credentials
	signals  signal.Notifier
	policy   *retry.Policy
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets a per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithRetry wraps every call in p. A nil policy disables retries.
func WithRetry(p *retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithSignals sets where session expiry is published.
func WithSignals(n signal.Notifier) Option {
	return func(c *Client) { c.signals = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for endpoint. By default it retries with
// retry.DefaultConfig and publishes nothing.
func New(endpoint string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		policy:   retry.New(retry.DefaultConfig(), nil),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL calls are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// Error is one entry of a GraphQL error envelope.
type Error struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors"`
}

// Query runs a query document and decodes its data object into out.
func (c *Client) Query(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	return c.do(ctx, "query", doc, vars, out)
}

// Mutate runs a mutation document and decodes its data object into out.
// out may be nil when the result is not needed.
func (c *Client) Mutate(ctx context.Context, doc string, vars map[string]interface{}, out interface{}) error {
	return c.do(ctx, "mutation", doc, vars, out)
}

func (c *Client) do(ctx context.Context, op, doc string, vars map[string]interface{}, out interface{}) error {
	call := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.send(ctx, op, doc, vars, out)
	}
	if c.policy == nil {
		_, err := call(ctx)
		return err
	}
	_, err := retry.Do(ctx, c.policy, call)
	return err
}

func (c *Client) send(ctx context.Context, op, doc string, vars map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(request{Query: doc, Variables: vars})
	if err != nil {
		return apperr.NewSystem(0, "could not encode "+op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return apperr.NewSystem(0, "could not build "+op+" request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.creds != nil {
		if userID, token, ok := c.creds.Credentials(); ok {
			req.Header.Set(HeaderUserID, userID)
			req.Header.Set(HeaderAuthToken, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("graphql transport failure", zap.String("operation", op), zap.Error(err))
		return apperr.NewNetwork("", err)
	}
	defer resp.Body.Close()

	// The server has answered from here on, so nothing below is Network.
	// A retry could repeat a mutation the server already applied.
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		c.logger.Warn("could not read graphql response",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.Error(readErr),
		)
		if ok {
			return apperr.NewSystem(resp.StatusCode, "could not read "+op+" response", readErr)
		}
	}

	var env response
	decodeErr := json.Unmarshal(raw, &env)

	if !ok {
		msg := ""
		if decodeErr == nil && len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		e := apperr.FromStatus(resp.StatusCode, msg)
		c.logger.Warn("graphql request failed",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		if e.IsSessionExpired() && c.signals != nil {
			c.signals.Publish(signal.SessionExpired)
		}
		return e
	}

	if decodeErr != nil {
		return apperr.NewSystem(resp.StatusCode, "could not decode "+op+" response", decodeErr)
	}
	if len(env.Errors) > 0 {
		c.logger.Warn("graphql returned errors",
			zap.String("operation", op),
			zap.Int("count", len(env.Errors)),
			zap.String("message", env.Errors[0].Message),
		)
		return apperr.NewSystem(resp.StatusCode, env.Errors[0].Message, nil).
			WithDetail("graphql_errors", env.Errors)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return apperr.NewSystem(resp.StatusCode, fmt.Sprintf("empty %s response", op), nil)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.NewSystem(resp.StatusCode, "could not decode "+op+" data", err)
	}
	return nil
}
