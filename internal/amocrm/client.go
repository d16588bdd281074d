// Package amocrm is a small client for the AmoCRM REST API v4.
package amocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "crm-audit-toolkit/internal/errors"
)

// BatchSize is the API limit on entities per create request.
const BatchSize = 250

const (
	maxAttempts        = 4
	defaultRatePerSec  = 5
	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to one AmoCRM account.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. for a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger for retries and batch progress.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for domain, either the account subdomain
// ("yourcompany") or a full host ("yourcompany.amocrm.com").
func NewClient(domain, accessToken string, opts ...Option) *Client {
	host := domain
	if !strings.Contains(host, ".") {
		host += ".amocrm.ru"
	}
	c := &Client{
		baseURL:    "https://" + host + "/api/v4",
		token:      accessToken,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRatePerSec), 1),
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// do sends a JSON request and decodes the response into out. HTTP 429 is
// retried after 1, 2, 4 and 8 seconds.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			wait := time.Duration(1<<attempt) * time.Second
			c.logger.Warn("rate limited, retrying", "path", path, "attempt", attempt+1, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		err = decodeResponse(resp, out)
		resp.Body.Close()
		if err != nil {
			return apperrors.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err).
				WithContext("status", resp.StatusCode)
		}
		return nil
	}
	return apperrors.NewNetworkError(fmt.Sprintf("%s %s: still rate limited after %d attempts", method, path, maxAttempts), nil)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateContacts creates contacts in batches and returns the created stubs.
func (c *Client) CreateContacts(ctx context.Context, contacts []Contact) ([]Contact, error) {
	var created []Contact
	for start := 0; start < len(contacts); start += BatchSize {
		end := min(start+BatchSize, len(contacts))
		var resp contactsResponse
		if err := c.do(ctx, http.MethodPost, "/contacts", nil, contacts[start:end], &resp); err != nil {
			return created, err
		}
		created = append(created, resp.Embedded.Contacts...)
		c.logger.Info("created contacts", "count", len(resp.Embedded.Contacts), "offset", start)
	}
	return created, nil
}

// FindContact returns the first contact matching query (name, phone or
// email), or nil when there is none.
func (c *Client) FindContact(ctx context.Context, query string) (*Contact, error) {
	params := url.Values{"query": {query}, "limit": {"1"}}
	var resp contactsResponse
	if err := c.do(ctx, http.MethodGet, "/contacts", params, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedded.Contacts) == 0 {
		return nil, nil
	}
	return &resp.Embedded.Contacts[0], nil
}

// CreateLeads creates leads in batches and returns the created stubs.
func (c *Client) CreateLeads(ctx context.Context, leads []Lead) ([]Lead, error) {
	var created []Lead
	for start := 0; start < len(leads); start += BatchSize {
		end := min(start+BatchSize, len(leads))
		var resp leadsResponse
		if err := c.do(ctx, http.MethodPost, "/leads", nil, leads[start:end], &resp); err != nil {
			return created, err
		}
		created = append(created, resp.Embedded.Leads...)
		c.logger.Info("created leads", "count", len(resp.Embedded.Leads), "offset", start)
	}
	return created, nil
}

// Pipelines lists pipelines with their statuses.
func (c *Client) Pipelines(ctx context.Context) ([]Pipeline, error) {
	var resp pipelinesResponse
	if err := c.do(ctx, http.MethodGet, "/leads/pipelines", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Embedded.Pipelines, nil
}
