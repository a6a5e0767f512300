// Package mediawiki implements wiki.Site over the MediaWiki Action API.
//
// Sessions, login, maxlag handling and the HTTP exchange are delegated to
// go-mwclient. This package adds typed responses, the edit rate limit,
// retries with a circuit breaker and context cancellation.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	mwclient "cgt.name/pkg/go-mwclient"
	"cgt.name/pkg/go-mwclient/params"
	"golang.org/x/time/rate"

	"github.com/cfdbot/cfdw/internal/wiki"
)

// Config configures a Client.
type Config struct {
	APIURL    string // e.g. https://en.wikipedia.org/w/api.php
	UserAgent string
	Username  string
	Password  string // bot password
	MaxLag    int     // seconds; 0 disables the maxlag parameter
	EditRate  float64 // writes per second; 0 means unlimited
	Retry     RetryConfig

	// CategoryRedirectTemplates mark soft category redirects.
	CategoryRedirectTemplates []string
}

// APIError is an error object returned by the API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki API error %s: %s", e.Code, e.Info)
}

// Client talks to one wiki. It is safe for concurrent use.
type Client struct {
	mw                *mwclient.Client
	username          string
	password          string
	logger            *slog.Logger
	retry             RetryConfig
	breaker           *CircuitBreaker
	limiter           *rate.Limiter
	categoryRedirects wiki.TemplateSet

	mu        sync.Mutex
	csrfToken string
	loggedIn  bool
}

var _ wiki.Site = (*Client)(nil)

// New creates a client. Call Login before writing.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("API URL is required")
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cfdw/1.0"
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Timeout == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	mw, err := mwclient.New(cfg.APIURL, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	mw.SetHTTPTimeout(cfg.Retry.Timeout)
	if cfg.MaxLag > 0 {
		mw.Maxlag.On = true
		mw.Maxlag.Timeout = strconv.Itoa(cfg.MaxLag)
		mw.Maxlag.Retries = cfg.Retry.MaxRetries
	}

	limit := rate.Inf
	if cfg.EditRate > 0 {
		limit = rate.Limit(cfg.EditRate)
	}
	templates := cfg.CategoryRedirectTemplates
	if len(templates) == 0 {
		templates = wiki.DefaultCategoryRedirectTemplates
	}

	c := &Client{
		mw:                mw,
		username:          cfg.Username,
		password:          cfg.Password,
		logger:            logger,
		retry:             cfg.Retry,
		limiter:           rate.NewLimiter(limit, 1),
		categoryRedirects: wiki.NewTemplateSet(templates...),
	}
	if cfg.Retry.CircuitBreakerEnabled {
		c.breaker = NewCircuitBreaker(cfg.Retry.FailureThreshold, cfg.Retry.SuccessThreshold, cfg.Retry.OpenTimeout, logger)
	}
	return c, nil
}

// Login authenticates with a bot password.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return fmt.Errorf("username and password are required to log in")
	}
	err := c.retryWithBackoff(ctx, "log in", func(ctx context.Context) error {
		return await(ctx, func() error { return c.mw.Login(c.username, c.password) })
	})
	if err != nil {
		return fmt.Errorf("login as %s failed: %w", c.username, err)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.csrfToken = ""
	c.mu.Unlock()
	c.logger.Info("logged in", "user", c.username)
	return nil
}

// token returns the cached CSRF token, fetching one when needed.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := c.call(ctx, params.Values{"action": "query", "meta": "tokens"}, &resp); err != nil {
		return "", fmt.Errorf("failed to fetch csrf token: %w", err)
	}
	token = resp.Query.Tokens.CSRFToken
	if token == "" || token == "+\\" {
		return "", fmt.Errorf("failed to fetch csrf token: not logged in")
	}

	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
	return token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()
}

// await runs fn, which cannot be cancelled, and stops waiting for it once
// ctx is done. The HTTP timeout bounds the abandoned call.
func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call performs one API request and decodes the response into out.
// The raw call leaves API errors in the body, so they are decoded here
// into *APIError for the retry classifier.
func (c *Client) call(ctx context.Context, p params.Values, out any) error {
	req := make(params.Values, len(p)+2)
	for k, v := range p {
		req[k] = v
	}
	req["formatversion"] = "2"
	c.mu.Lock()
	if c.loggedIn && req["action"] != "login" {
		req["assert"] = "user"
	}
	c.mu.Unlock()

	var body []byte
	err := await(ctx, func() error {
		var err error
		body, err = c.mw.PostRaw(req)
		return err
	})
	if err != nil {
		return err
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// read performs a read request with retries.
func (c *Client) read(ctx context.Context, operation string, p params.Values, out any) error {
	return c.retryWithBackoff(ctx, operation, func(ctx context.Context) error {
		return c.call(ctx, p, out)
	})
}

// write performs a token-bearing request, waiting for the edit rate limiter.
func (c *Client) write(ctx context.Context, operation string, p params.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return c.retryWithBackoff(ctx, operation, func(ctx context.Context) error {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}
		p["token"] = token
		err = c.call(ctx, p, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "badtoken" {
			c.clearToken()
		}
		return err
	})
}

// queryAll follows API continuation, handing each batch's "query" object
// to fn.
func (c *Client) queryAll(ctx context.Context, operation string, p params.Values, fn func(query json.RawMessage) error) error {
	p["action"] = "query"
	for {
		var resp struct {
			Continue map[string]any  `json:"continue"`
			Query    json.RawMessage `json:"query"`
		}
		if err := c.read(ctx, operation, p, &resp); err != nil {
			return err
		}
		if len(resp.Query) > 0 {
			if err := fn(resp.Query); err != nil {
				return err
			}
		}
		if len(resp.Continue) == 0 {
			return nil
		}
		for k, v := range resp.Continue {
			p[k] = fmt.Sprint(v)
		}
	}
}

// pageError maps API error codes onto the wiki sentinel errors.
func pageError(page wiki.Title, err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "missingtitle", "nosuchpageid":
		return fmt.Errorf("%s: %w: %w", page, wiki.ErrMissing, err)
	case "articleexists", "selfmove":
		return fmt.Errorf("%s: %w: %w", page, wiki.ErrExists, err)
	}
	return err
}
