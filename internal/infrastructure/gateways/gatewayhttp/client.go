// Package gatewayhttp is the shared REST client used by provider adapters.
package gatewayhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainerrors "payroute.backend/internal/domain/errors"
)

const maxResponseBytes = 1 << 20

// DefaultHTTPClient has no overall timeout; each call is bounded by its context.
var DefaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// ErrorDecoder extracts a provider error code and message from a non-2xx body.
type ErrorDecoder func(status int, body []byte) (code, message string)

// Client talks to one provider's REST API
type Client struct {
	gateway     string
	baseURL     string
	http        *http.Client
	authorize   func(*http.Request)
	decodeError ErrorDecoder
}

func NewClient(gateway, baseURL string, httpClient *http.Client, authorize func(*http.Request), decodeError ErrorDecoder) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient
	}
	return &Client{
		gateway:     gateway,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpClient,
		authorize:   authorize,
		decodeError: decodeError,
	}
}

// Request describes one call. At most one of Form and JSON is set.
type Request struct {
	Method string
	Path   string
	Form   url.Values
	JSON   interface{}
	Header http.Header
}

// Do executes the request and decodes a 2xx body into out when out is non-nil.
// The raw response body is always returned so callers can keep it for audit.
// Every failure is a *domainerrors.GatewayCallError.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) (json.RawMessage, error) {
	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.JSON != nil:
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, c.callError("", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, c.callError("", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		c.authorize(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domainerrors.GatewayCallError{Gateway: c.gateway, Timeout: true, Err: err}
		}
		return nil, c.callError("", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.callError("", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := "", ""
		if c.decodeError != nil {
			code, message = c.decodeError(resp.StatusCode, raw)
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return raw, c.callError(code, fmt.Errorf("http %d: %s", resp.StatusCode, message))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, c.callError("", fmt.Errorf("decode response: %w", err))
		}
	}
	return raw, nil
}

func (c *Client) callError(code string, err error) error {
	return &domainerrors.GatewayCallError{Gateway: c.gateway, ProviderCode: code, Err: err}
}
