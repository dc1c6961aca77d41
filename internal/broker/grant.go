package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	log "github.com/sirupsen/logrus"
)

// grantPollInterval is the fixed delay between approval polls. Approval needs
// a human in the loop, so it is deliberately not configurable.
var grantPollInterval = 2 * time.Second

// defaultGrantWindow bounds the poll loop when the broker does not send an
// expiry for the authorization request.
const defaultGrantWindow = 5 * time.Minute

// ErrApprovalTimeout is returned when the local deadline passes before the
// broker reports a terminal grant state.
var ErrApprovalTimeout = errors.New("Timed out waiting for authorization approval")

// GrantRefusedError is returned when the broker reports a denied or expired
// authorization request. The broker's message is surfaced verbatim.
type GrantRefusedError struct {
	Status  string
	Message string
}

func (e *GrantRefusedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authorization %s: %s", e.Status, e.Message)
	}
	return "authorization " + e.Status
}

// GrantTicket is the broker's answer to a grant request: either an immediate
// auto-approval or a pending request with the poll and approve endpoints.
type GrantTicket struct {
	RequestID    string
	PollURL      string
	ApproveURL   string
	ExpiresAt    time.Time
	AutoApproved bool
}

// RequestGrant creates a scoped, time-boxed authorization request for the
// given service. The returned ticket must be resolved with WaitForGrant
// unless it was auto-approved.
func (c *Client) RequestGrant(ctx context.Context, service string, scopes []string, duration time.Duration) (*GrantTicket, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "service", service)
	body, _ = sjson.SetBytes(body, "scopes", scopes)
	body, _ = sjson.SetBytes(body, "duration", int(duration.Seconds()))

	status, payload, err := c.doRead(ctx, http.MethodPost, "/api/auth-request", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		if gjson.ValidBytes(payload) {
			return nil, Classify(payload, service)
		}
		return nil, fmt.Errorf("authorization request failed: status %d", status)
	}

	ticket := &GrantTicket{
		RequestID:    gjson.GetBytes(payload, "requestId").String(),
		PollURL:      gjson.GetBytes(payload, "pollUrl").String(),
		ApproveURL:   gjson.GetBytes(payload, "approveUrl").String(),
		AutoApproved: gjson.GetBytes(payload, "autoApproved").Bool(),
	}
	if raw := gjson.GetBytes(payload, "expiresAt").String(); raw != "" {
		if parsed, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
			ticket.ExpiresAt = parsed
		}
	}

	log.WithFields(log.Fields{"service": service, "scopes": scopes}).Debugf("authorization request %s created", ticket.RequestID)
	return ticket, nil
}

// WaitForGrant polls the ticket's poll URL until the broker reports a
// terminal state or the deadline passes. Auto-approved tickets return
// immediately without a single poll.
func (c *Client) WaitForGrant(ctx context.Context, ticket *GrantTicket, service string) error {
	if ticket.AutoApproved {
		log.WithField("service", service).Debug("authorization auto-approved")
		return nil
	}
	if ticket.PollURL == "" {
		return fmt.Errorf("authorization request has no poll URL")
	}

	deadline := ticket.ExpiresAt
	if deadline.IsZero() {
		deadline = time.Now().Add(defaultGrantWindow)
	}

	oauthNotified := false
	for {
		status, payload, err := c.doRead(ctx, http.MethodGet, ticket.PollURL, nil)
		if err != nil {
			return err
		}
		if status < 200 || status > 299 {
			if gjson.ValidBytes(payload) {
				return Classify(payload, service)
			}
			return fmt.Errorf("authorization poll failed: status %d", status)
		}

		switch gjson.GetBytes(payload, "status").String() {
		case "approved":
			fmt.Println("Authorization approved.")
			return nil
		case "denied", "expired":
			return &GrantRefusedError{
				Status:  gjson.GetBytes(payload, "status").String(),
				Message: gjson.GetBytes(payload, "message").String(),
			}
		case "oauth_pending":
			if !oauthNotified {
				oauthNotified = true
				fmt.Println("Browser-based sign-in required. Complete the OAuth flow in your browser to continue.")
			}
		}
		// pending and unknown statuses keep polling until the deadline.

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(grantPollInterval):
		}
		if time.Now().After(deadline) {
			return ErrApprovalTimeout
		}
	}
}

// ObtainGrant runs one full request-and-wait cycle for the service. The
// approve URL is shown to the operator, and opened in the browser through
// openURL when provided.
func (c *Client) ObtainGrant(ctx context.Context, service string, scopes []string, duration time.Duration, openURL func(string) error) error {
	if c.sessionID == "" {
		return &AuthError{Kind: KindNoSession, Service: service}
	}

	ticket, err := c.RequestGrant(ctx, service, scopes, duration)
	if err != nil {
		return err
	}
	if ticket.AutoApproved {
		fmt.Printf("Authorization for %s auto-approved.\n", service)
		return nil
	}

	if ticket.ApproveURL != "" {
		fmt.Printf("Approval required for %s. Approve this request at:\n  %s\n", service, ticket.ApproveURL)
		if openURL != nil {
			if errOpen := openURL(ticket.ApproveURL); errOpen != nil {
				log.Debugf("failed to open approve URL: %v", errOpen)
			}
		}
	}

	return c.WaitForGrant(ctx, ticket, service)
}

// GrantInfo reports the broker-side grant state for one service.
type GrantInfo struct {
	HasGrant  bool
	Scopes    []string
	ExpiresAt time.Time
}

// GrantStatus fetches the current grant state for the service.
func (c *Client) GrantStatus(ctx context.Context, service string) (*GrantInfo, error) {
	status, payload, err := c.doRead(ctx, http.MethodGet, "/api/proxy/status/"+service, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		if gjson.ValidBytes(payload) {
			return nil, Classify(payload, service)
		}
		return nil, fmt.Errorf("grant status failed: status %d", status)
	}

	info := &GrantInfo{HasGrant: gjson.GetBytes(payload, "hasGrant").Bool()}
	for _, scope := range gjson.GetBytes(payload, "scopes").Array() {
		info.Scopes = append(info.Scopes, scope.String())
	}
	if raw := gjson.GetBytes(payload, "expiresAt").String(); raw != "" {
		if parsed, errParse := time.Parse(time.RFC3339, raw); errParse == nil {
			info.ExpiresAt = parsed
		}
	}
	return info, nil
}
