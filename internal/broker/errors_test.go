package broker

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		expected Kind
	}{
		{
			"missing agent session",
			`{"error": "no_agent_session"}`,
			KindNoSession,
		},
		{
			"no grant",
			`{"error": "no_grant"}`,
			KindNoGrant,
		},
		{
			"grant expired",
			`{"error": "grant_expired"}`,
			KindNoGrant,
		},
		{
			"single use exhausted",
			`{"error": "single_use_exhausted"}`,
			KindNoGrant,
		},
		{
			"no grant wins over elevate URL",
			`{"error": "no_grant", "elevateUrl": "https://broker.test/elevate"}`,
			KindNoGrant,
		},
		{
			"session check wins over everything",
			`{"error": "no_agent_session", "reauthorizeUrl": "https://broker.test/reauth", "elevateUrl": "https://broker.test/elevate"}`,
			KindNoSession,
		},
		{
			"account not linked",
			`{"error": "no_oauth_token", "connectUrl": "https://broker.test/connect"}`,
			KindAccountNotLinked,
		},
		{
			"no_oauth_token without connect URL is generic",
			`{"error": "no_oauth_token"}`,
			KindGeneric,
		},
		{
			"reauthorize URL",
			`{"reauthorizeUrl": "https://broker.test/reauth", "missingScopes": ["read", "write"]}`,
			KindScopeExpired,
		},
		{
			"reauthorize wins over elevate",
			`{"reauthorizeUrl": "https://broker.test/reauth", "elevateUrl": "https://broker.test/elevate"}`,
			KindScopeExpired,
		},
		{
			"elevate URL",
			`{"elevateUrl": "https://broker.test/elevate"}`,
			KindElevationRequired,
		},
		{
			"unknown error code",
			`{"error": "quota_exceeded", "message": "try later"}`,
			KindGeneric,
		},
		{
			"empty payload",
			`{}`,
			KindGeneric,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify([]byte(tt.payload), "notion")
			if got.Kind != tt.expected {
				t.Errorf("Classify() kind = %q, want %q", got.Kind, tt.expected)
			}
			if got.Service != "notion" {
				t.Errorf("Classify() service = %q, want notion", got.Service)
			}
		})
	}
}

func TestClassifyRemediationData(t *testing.T) {
	t.Parallel()

	authErr := Classify([]byte(`{"reauthorizeUrl": "https://broker.test/reauth", "missingScopes": ["Files.Read"]}`), "graph")
	if authErr.URL != "https://broker.test/reauth" {
		t.Errorf("URL = %q", authErr.URL)
	}
	if len(authErr.MissingScopes) != 1 || authErr.MissingScopes[0] != "Files.Read" {
		t.Errorf("MissingScopes = %v", authErr.MissingScopes)
	}
	if !strings.Contains(authErr.Remediation(), "https://broker.test/reauth") {
		t.Errorf("Remediation() does not carry the reauthorize URL: %q", authErr.Remediation())
	}
}

func TestClassifyGenericFallbackMessage(t *testing.T) {
	t.Parallel()

	authErr := Classify([]byte(`{}`), "notion")
	if authErr.Remediation() != "Authentication failed" {
		t.Errorf("Remediation() = %q, want default message", authErr.Remediation())
	}
}

func TestIsRetryableAuthError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		expected bool
	}{
		{"no_grant", `{"error": "no_grant"}`, true},
		{"grant_expired", `{"error": "grant_expired"}`, true},
		{"single_use_exhausted", `{"error": "single_use_exhausted"}`, true},
		{"no_agent_session", `{"error": "no_agent_session"}`, false},
		{"no_oauth_token", `{"error": "no_oauth_token"}`, false},
		{"unknown code", `{"error": "quota_exceeded"}`, false},
		{"absent error field", `{"message": "nope"}`, false},
		{"empty payload", ``, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryableAuthError([]byte(tt.payload)); got != tt.expected {
				t.Errorf("IsRetryableAuthError() = %v, want %v", got, tt.expected)
			}
		})
	}
}
