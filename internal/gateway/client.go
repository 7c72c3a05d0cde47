// Package gateway is the single path to the triage backend. It attaches the
// bearer token, maps failures onto reliability kinds and tears the credential
// state down when the backend rejects it.
package gateway

import (
	"bytes"
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

	"github.com/google/uuid"

	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/policy"
	"github.com/aidcare/copilot/internal/reliability"
	"github.com/aidcare/copilot/internal/session"
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Credentials *session.Credentials
	// OnUnauthorized runs after a 401 on any path except login/register,
	// typically sending the operator back to the login screen.
	OnUnauthorized func(path string)
	Metrics        *observability.Metrics
	Logger         *slog.Logger
}

type Client struct {
	baseURL        string
	timeout        time.Duration
	http           *http.Client
	creds          *session.Credentials
	onUnauthorized func(path string)
	metrics        *observability.Metrics
	logger         *slog.Logger
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          16,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
				ForceAttemptHTTP2:     true,
			},
		}
	}
	creds := opts.Credentials
	if creds == nil {
		creds = session.NewCredentials("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        base,
		timeout:        timeout,
		http:           hc,
		creds:          creds,
		onUnauthorized: opts.OnUnauthorized,
		metrics:        opts.Metrics,
		logger:         logger,
	}, nil
}

func (c *Client) Credentials() *session.Credentials { return c.creds }

// DoJSON sends in as a JSON body (nil for none) and decodes a 2xx response into out (nil to discard).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	raw, _, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	return decode(path, raw, out)
}

// DoForm posts a multipart form and decodes the JSON response into out.
func (c *Client) DoForm(ctx context.Context, path string, form *Form, out any) error {
	body, contentType, err := form.encode()
	if err != nil {
		return fmt.Errorf("encode %s form: %w", path, err)
	}
	raw, _, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return err
	}
	return decode(path, raw, out)
}

// DoBinary sends in as JSON and returns the raw response body and its content type.
func (c *Client) DoBinary(ctx context.Context, method, path string, in any) ([]byte, string, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, body, "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	route := routeLabel(path)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, "", fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.creds.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		gerr := transportError(ctx, path, err)
		c.metrics.ObserveGatewayRequest(route, string(gerr.kind), time.Since(start))
		c.logger.Warn("backend request failed", "method", method, "path", path, "kind", gerr.kind, "err", policy.Redact(err.Error()))
		return nil, "", gerr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		gerr := transportError(ctx, path, err)
		c.metrics.ObserveGatewayRequest(route, string(gerr.kind), time.Since(start))
		return nil, "", gerr
	}
	c.metrics.ObserveGatewayRequest(route, statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(path)
		return nil, "", statusError(path, resp.StatusCode, raw)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := statusError(path, resp.StatusCode, raw)
		c.logger.Debug("backend rejected request", "method", method, "path", path, "status", resp.StatusCode, "detail", policy.Redact(gerr.Detail))
		return nil, "", gerr
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *Client) handleUnauthorized(path string) {
	c.creds.Clear()
	if isAuthPath(path) {
		return
	}
	c.logger.Info("session expired, redirecting to login", "path", path)
	if c.onUnauthorized != nil {
		c.onUnauthorized(path)
	}
}

func isAuthPath(path string) bool {
	return strings.Contains(path, "/auth/login") || strings.Contains(path, "/auth/register")
}

func transportError(ctx context.Context, path string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Detail: timeoutDetail, Path: path, kind: reliability.KindTimeout, err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Detail: "request cancelled", Path: path, kind: reliability.KindTransport, err: err}
	}
	kind := reliability.KindOf(err)
	if kind != reliability.KindTimeout {
		kind = reliability.KindTransport
	}
	detail := "unable to reach the server"
	if kind == reliability.KindTimeout {
		detail = timeoutDetail
	}
	return &Error{Detail: detail, Path: path, kind: kind, err: err}
}

func decode(path string, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Status: http.StatusOK, Detail: "unexpected response from server", Path: path, kind: reliability.KindServer, err: err}
	}
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// routeLabel strips the query and collapses ids so metric labels stay bounded.
func routeLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
