package broker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	log "github.com/sirupsen/logrus"
)

// Registration is the broker's answer to an agent init request. Brokers with
// open enrollment return the session immediately; otherwise the operator must
// confirm the displayed code at the verify URL while the client polls.
type Registration struct {
	RegistrationID string
	AgentSessionID string
	Code           string
	VerifyURL      string
	PollURL        string
	ExpiresIn      int
}

// Register announces this device to the broker and starts the enrollment
// handshake.
func (c *Client) Register(ctx context.Context, agentName string) (*Registration, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "agentName", agentName)
	body, _ = sjson.SetBytes(body, "deviceInfo.hostname", hostname)
	body, _ = sjson.SetBytes(body, "deviceInfo.os", runtime.GOOS)
	body, _ = sjson.SetBytes(body, "deviceInfo.arch", runtime.GOARCH)
	body, _ = sjson.SetBytes(body, "deviceInfo.deviceId", uuid.NewString())

	status, payload, err := c.doRead(ctx, http.MethodPost, "/api/agent/init", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		if gjson.ValidBytes(payload) {
			if msg := gjson.GetBytes(payload, "message").String(); msg != "" {
				return nil, fmt.Errorf("registration failed: %s", msg)
			}
		}
		return nil, fmt.Errorf("registration failed: status %d", status)
	}

	reg := &Registration{
		RegistrationID: gjson.GetBytes(payload, "registrationId").String(),
		AgentSessionID: gjson.GetBytes(payload, "agentSessionId").String(),
		Code:           gjson.GetBytes(payload, "code").String(),
		VerifyURL:      gjson.GetBytes(payload, "verifyUrl").String(),
		PollURL:        gjson.GetBytes(payload, "pollUrl").String(),
		ExpiresIn:      int(gjson.GetBytes(payload, "expiresIn").Int()),
	}
	log.Debugf("registration %s created for agent %q", reg.RegistrationID, agentName)
	return reg, nil
}

// WaitForRegistration polls until the operator approves the enrollment and
// the broker hands out the agent session id.
func (c *Client) WaitForRegistration(ctx context.Context, reg *Registration) (string, error) {
	if reg.AgentSessionID != "" {
		return reg.AgentSessionID, nil
	}
	if reg.PollURL == "" {
		return "", fmt.Errorf("registration has no poll URL")
	}

	window := defaultGrantWindow
	if reg.ExpiresIn > 0 {
		window = time.Duration(reg.ExpiresIn) * time.Second
	}
	deadline := time.Now().Add(window)

	for {
		status, payload, err := c.doRead(ctx, http.MethodGet, reg.PollURL, nil)
		if err != nil {
			return "", err
		}
		if status < 200 || status > 299 {
			return "", fmt.Errorf("registration poll failed: status %d", status)
		}

		switch gjson.GetBytes(payload, "status").String() {
		case "approved":
			sessionID := gjson.GetBytes(payload, "agentSessionId").String()
			if sessionID == "" {
				return "", fmt.Errorf("registration approved but no session id returned")
			}
			return sessionID, nil
		case "denied", "expired":
			return "", &GrantRefusedError{
				Status:  gjson.GetBytes(payload, "status").String(),
				Message: gjson.GetBytes(payload, "message").String(),
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(grantPollInterval):
		}
		if time.Now().After(deadline) {
			return "", ErrApprovalTimeout
		}
	}
}
