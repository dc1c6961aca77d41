package broker

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is a machine-readable classification of a broker authorization failure.
type Kind string

const (
	// KindNoSession means the broker does not recognize the agent session.
	KindNoSession Kind = "no_session"
	// KindNoGrant means the session has no usable grant for the service.
	// This is the only kind eligible for automatic re-request.
	KindNoGrant Kind = "no_grant"
	// KindAccountNotLinked means the downstream account was never connected.
	KindAccountNotLinked Kind = "account_not_linked"
	// KindScopeExpired means the stored authorization expired or lacks scopes.
	KindScopeExpired Kind = "scope_expired"
	// KindElevationRequired means the request needs an explicit human approval.
	KindElevationRequired Kind = "elevation_required"
	// KindGeneric covers every other authorization failure.
	KindGeneric Kind = "auth_failed"
)

// AuthError describes an authorization failure in a service-agnostic format,
// carrying the data needed to tell the operator their concrete next action.
type AuthError struct {
	// Kind is the classified failure category.
	Kind Kind
	// Service is the downstream service the failed call targeted.
	Service string
	// Message is the broker's human-readable description, when present.
	Message string
	// URL is the remediation link (connect, reauthorize, or elevate).
	URL string
	// MissingScopes lists scopes the current authorization lacks.
	MissingScopes []string
	// HTTPStatus records the HTTP status that surfaced the failure.
	HTTPStatus int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Remediation returns the user-facing diagnosis plus the concrete next action.
func (e *AuthError) Remediation() string {
	if e == nil {
		return "Authentication failed"
	}
	switch e.Kind {
	case KindNoSession:
		return "No agent session found. Run `agentgate -login` to register this device."
	case KindNoGrant:
		return fmt.Sprintf("No active grant for %s. Run `agentgate -request %s` to request authorization.", e.Service, e.Service)
	case KindAccountNotLinked:
		return fmt.Sprintf("Your %s account is not linked yet. Visit %s to connect it.", e.Service, e.URL)
	case KindScopeExpired:
		msg := fmt.Sprintf("Authorization for %s has expired or is missing scopes.", e.Service)
		if len(e.MissingScopes) > 0 {
			msg = fmt.Sprintf("Authorization for %s is missing scopes: %s.", e.Service, strings.Join(e.MissingScopes, ", "))
		}
		return msg + fmt.Sprintf(" Visit %s to reauthorize.", e.URL)
	case KindElevationRequired:
		return fmt.Sprintf("This action requires additional approval. Visit %s to elevate the grant.", e.URL)
	default:
		if e.Message != "" {
			return e.Message
		}
		return "Authentication failed"
	}
}

// retryableAuthCodes are the broker error codes that an automatic grant
// re-request can fix without human action.
var retryableAuthCodes = map[string]struct{}{
	"no_grant":             {},
	"grant_expired":        {},
	"single_use_exhausted": {},
}

// RetryableAuthCode reports whether the given broker error code is eligible
// for automatic grant re-request.
func RetryableAuthCode(code string) bool {
	_, ok := retryableAuthCodes[code]
	return ok
}

// IsRetryableAuthError inspects a raw error payload and reports whether the
// failure can be fixed by requesting a fresh grant. Every other kind requires
// an out-of-band human action and is surfaced instead of retried.
func IsRetryableAuthError(payload []byte) bool {
	return RetryableAuthCode(gjson.GetBytes(payload, "error").String())
}

// Classify maps a structured broker error payload onto an AuthError. Rules
// apply top to bottom and the first match wins, so a payload carrying both a
// retryable error code and an elevateUrl still classifies as KindNoGrant.
func Classify(payload []byte, service string) *AuthError {
	errCode := gjson.GetBytes(payload, "error").String()
	message := gjson.GetBytes(payload, "message").String()

	authErr := &AuthError{Service: service, Message: message}

	switch {
	case errCode == "no_agent_session":
		authErr.Kind = KindNoSession
	case RetryableAuthCode(errCode):
		authErr.Kind = KindNoGrant
	case errCode == "no_oauth_token" && gjson.GetBytes(payload, "connectUrl").Exists():
		authErr.Kind = KindAccountNotLinked
		authErr.URL = gjson.GetBytes(payload, "connectUrl").String()
	case gjson.GetBytes(payload, "reauthorizeUrl").Exists():
		authErr.Kind = KindScopeExpired
		authErr.URL = gjson.GetBytes(payload, "reauthorizeUrl").String()
		for _, scope := range gjson.GetBytes(payload, "missingScopes").Array() {
			authErr.MissingScopes = append(authErr.MissingScopes, scope.String())
		}
	case gjson.GetBytes(payload, "elevateUrl").Exists():
		authErr.Kind = KindElevationRequired
		authErr.URL = gjson.GetBytes(payload, "elevateUrl").String()
	default:
		authErr.Kind = KindGeneric
		if authErr.Message == "" {
			authErr.Message = errCode
		}
	}

	return authErr
}
