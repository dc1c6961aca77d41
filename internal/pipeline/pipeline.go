// Package pipeline wraps proxied downstream API calls with the authorization
// recovery behavior: a call that fails with a retryable grant error triggers
// one grant request cycle and exactly one retry of the original call. Every
// other failure propagates to the caller untouched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/agentgate/agentgate/internal/broker"

	log "github.com/sirupsen/logrus"
)

// GrantSpec names the scope set and lifetime to request when re-acquiring
// authorization for a service.
type GrantSpec struct {
	Scopes   []string
	Duration time.Duration
}

// Call describes one downstream request. It is immutable across the retry;
// only the transport-level session header differs between attempts.
type Call struct {
	// Service selects the broker proxy route (notion, graph, ...).
	Service string
	Method  string
	Path    string
	Body    []byte
	// Raw marks content endpoints: the response body is returned verbatim
	// and a single 301/302 redirect is followed without the session header.
	Raw bool
}

// Pipeline issues proxied calls through the broker with single-retry
// authorization recovery.
type Pipeline struct {
	client    *broker.Client
	autoGrant bool
	grantSpec func(service string) GrantSpec
	openURL   func(string) error
}

// New builds a pipeline. grantSpec supplies per-service grant parameters for
// automatic re-requests; openURL optionally opens approve links in a browser.
func New(client *broker.Client, autoGrant bool, grantSpec func(service string) GrantSpec, openURL func(string) error) *Pipeline {
	if grantSpec == nil {
		grantSpec = func(string) GrantSpec { return GrantSpec{} }
	}
	return &Pipeline{client: client, autoGrant: autoGrant, grantSpec: grantSpec, openURL: openURL}
}

// Do executes the call. At most two attempts are made: the original, and one
// retry after a successful grant re-acquisition. The session precondition is
// checked before any network I/O.
func (p *Pipeline) Do(ctx context.Context, call Call) ([]byte, error) {
	if p.client.SessionID() == "" {
		return nil, &broker.AuthError{Kind: broker.KindNoSession, Service: call.Service}
	}

	for attempt := 0; attempt < 2; attempt++ {
		status, body, header, err := p.client.Proxy(ctx, call.Service, call.Method, call.Path, call.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case status >= 200 && status <= 299:
			return body, nil

		case call.Raw && (status == http.StatusMovedPermanently || status == http.StatusFound):
			// Content redirects point at pre-signed URLs; follow once,
			// without the session header.
			location := header.Get("Location")
			if location == "" {
				return nil, fmt.Errorf("redirect response missing Location header")
			}
			return p.client.FetchUnauthenticated(ctx, location)

		case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusTooManyRequests:
			if attempt == 0 && p.autoGrant && broker.IsRetryableAuthError(body) {
				grant := p.grantSpec(call.Service)
				log.WithFields(log.Fields{"service": call.Service, "status": status}).Debug("re-requesting authorization")
				if errGrant := p.client.ObtainGrant(ctx, call.Service, grant.Scopes, grant.Duration, p.openURL); errGrant != nil {
					return nil, errGrant
				}
				continue
			}
			if gjson.ValidBytes(body) {
				authErr := broker.Classify(body, call.Service)
				authErr.HTTPStatus = status
				return nil, authErr
			}
			return nil, fmt.Errorf("authorization failed: status %d", status)

		default:
			if gjson.ValidBytes(body) {
				if msg := firstNonEmpty(gjson.GetBytes(body, "error").String(), gjson.GetBytes(body, "message").String()); msg != "" {
					return nil, errors.New(msg)
				}
			}
			return nil, fmt.Errorf("request failed: status %d: %s", status, strings.TrimSpace(string(body)))
		}
	}

	// The second iteration always returns; this is unreachable.
	return nil, fmt.Errorf("request failed after retry")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
