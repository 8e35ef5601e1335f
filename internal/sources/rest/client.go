// Package rest is a client for the upstream Flynance REST API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"flynance/internal/core"
	"flynance/internal/query"
	"flynance/internal/sources"
)

var _ sources.Source = (*Client)(nil)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses, after retries.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("flynance API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("flynance API returned status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

type Client struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

// New builds a client. Connection errors, 429 and 5xx responses are retried
// with backoff by go-retryablehttp.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("missing API base URL")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = 30 * time.Second
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	// hand the final response back so it can become a StatusError
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}

	return &Client{baseURL: base, token: cfg.Token, httpClient: rc}, nil
}

// ListTransactions calls GET /transactions with p as the query string.
func (c *Client) ListTransactions(ctx context.Context, p query.Params) (core.TransactionPage, error) {
	var page sources.PageJSON
	if err := c.get(ctx, "/transactions", p.Values(), &page); err != nil {
		return core.TransactionPage{}, err
	}
	out, err := page.ToCore()
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("decode transactions: %w", err)
	}
	return out, nil
}

// ListCategories calls GET /categories.
func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var raw []sources.CategoryJSON
	if err := c.get(ctx, "/categories", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(raw))
	for _, cj := range raw {
		out = append(out, cj.ToCore())
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, into any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
