// Package broker implements the client side of the AgentGate authorization
// broker protocol: agent registration, grant request and approval polling,
// grant status lookup, and the proxied passthrough request primitive the
// request pipeline is built on.
package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/agentgate/agentgate/internal/util"
)

const sessionHeader = "X-Agent-Session"

// Client talks to the authorization broker on behalf of one agent session.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

// NewClient creates a broker client. sessionID may be empty for flows that
// run before registration completes. proxyURL optionally routes all broker
// traffic through an HTTP, HTTPS, or SOCKS5 proxy.
func NewClient(baseURL, sessionID, proxyURL string) *Client {
	httpClient := util.SetProxy(proxyURL, &http.Client{
		Timeout: 2 * time.Minute,
		// Redirects from content endpoints point at pre-signed URLs that the
		// caller must fetch without the session header, so they are returned
		// to the caller instead of being followed.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	})
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpClient: httpClient,
	}
}

// SessionID returns the agent session the client authenticates with.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SetSessionID swaps the session used for subsequent requests. The login flow
// calls this once registration resolves to an approved session.
func (c *Client) SetSessionID(id string) {
	c.sessionID = id
}

// BaseURL returns the broker endpoint the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// absoluteURL resolves a path or fully-qualified URL against the broker base.
// Poll URLs arrive from the broker either absolute or broker-relative.
func (c *Client) absoluteURL(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	if !strings.HasPrefix(pathOrURL, "/") {
		pathOrURL = "/" + pathOrURL
	}
	return c.baseURL + pathOrURL
}

// do issues one HTTP request with the session and request-id headers applied.
// The caller owns the response body.
func (c *Client) do(ctx context.Context, method, pathOrURL string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.absoluteURL(pathOrURL), reader)
	if err != nil {
		return nil, fmt.Errorf("create broker request: %w", err)
	}
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}
	requestID := uuid.NewString()[:8]
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.WithField("request_id", requestID).Debugf("%s %s", method, pathOrURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	return resp, nil
}

// doRead issues a request and drains the body, returning status and payload.
func (c *Client) doRead(ctx context.Context, method, pathOrURL string, body []byte) (int, []byte, error) {
	resp, err := c.do(ctx, method, pathOrURL, body)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read broker response: %w", err)
	}
	return resp.StatusCode, payload, nil
}

// FetchUnauthenticated issues a plain GET without the session header. Content
// redirect targets are pre-signed and must not see the agent session.
func (c *Client) FetchUnauthenticated(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read download response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	return payload, nil
}

// Proxy issues one passthrough request to /api/proxy/{service}{path} and
// returns the raw status and body. Auth-error handling belongs to the caller.
func (c *Client) Proxy(ctx context.Context, service, method, path string, body []byte) (int, []byte, http.Header, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := c.do(ctx, method, "/api/proxy/"+service+path, body)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, fmt.Errorf("read proxy response: %w", err)
	}
	return resp.StatusCode, payload, resp.Header, nil
}

// DeleteSession asks the broker to invalidate the current agent session.
func (c *Client) DeleteSession(ctx context.Context) error {
	status, payload, err := c.doRead(ctx, http.MethodDelete, "/api/agent/session", nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("delete session failed: status %d: %s", status, strings.TrimSpace(string(payload)))
	}
	return nil
}
