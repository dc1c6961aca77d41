package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastPolling shortens the poll interval so tests finish quickly.
func fastPolling(t *testing.T) {
	t.Helper()
	saved := grantPollInterval
	grantPollInterval = 5 * time.Millisecond
	t.Cleanup(func() { grantPollInterval = saved })
}

func TestRequestGrantAutoApproved(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth-request":
			if got := r.Header.Get("X-Agent-Session"); got != "as-test" {
				t.Errorf("auth request session header = %q, want as-test", got)
			}
			fmt.Fprint(w, `{"requestId": "req-1", "status": "approved", "autoApproved": true}`)
		default:
			polls.Add(1)
			fmt.Fprint(w, `{"status": "approved"}`)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket, err := client.RequestGrant(context.Background(), "notion", []string{"search"}, time.Hour)
	if err != nil {
		t.Fatalf("RequestGrant() error: %v", err)
	}
	if !ticket.AutoApproved {
		t.Fatal("ticket not auto-approved")
	}
	if err = client.WaitForGrant(context.Background(), ticket, "notion"); err != nil {
		t.Fatalf("WaitForGrant() error: %v", err)
	}
	if polls.Load() != 0 {
		t.Errorf("auto-approval performed %d polls, want 0", polls.Load())
	}
}

func TestWaitForGrantPollsUntilApproved(t *testing.T) {
	fastPolling(t)

	const pendingPolls = 3
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/poll/req-2" {
			t.Errorf("unexpected poll path %q", r.URL.Path)
		}
		if n := polls.Add(1); n <= pendingPolls {
			fmt.Fprint(w, `{"status": "pending"}`)
			return
		}
		fmt.Fprint(w, `{"status": "approved"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: server.URL + "/poll/req-2", ExpiresAt: time.Now().Add(time.Minute)}
	if err := client.WaitForGrant(context.Background(), ticket, "notion"); err != nil {
		t.Fatalf("WaitForGrant() error: %v", err)
	}
	if polls.Load() != pendingPolls+1 {
		t.Errorf("polled %d times, want %d", polls.Load(), pendingPolls+1)
	}
}

func TestWaitForGrantRelativePollURL(t *testing.T) {
	fastPolling(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "approved"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: "/api/auth-request/req-3/poll", ExpiresAt: time.Now().Add(time.Minute)}
	if err := client.WaitForGrant(context.Background(), ticket, "notion"); err != nil {
		t.Fatalf("WaitForGrant() error: %v", err)
	}
}

func TestWaitForGrantDenied(t *testing.T) {
	fastPolling(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "denied", "message": "operator rejected the request"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: server.URL + "/poll", ExpiresAt: time.Now().Add(time.Minute)}
	err := client.WaitForGrant(context.Background(), ticket, "notion")

	var refused *GrantRefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("WaitForGrant() error = %v, want GrantRefusedError", err)
	}
	if refused.Status != "denied" || refused.Message != "operator rejected the request" {
		t.Errorf("refusal = %+v", refused)
	}
}

func TestWaitForGrantExpiredIsTerminal(t *testing.T) {
	fastPolling(t)

	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		fmt.Fprint(w, `{"status": "expired", "message": "request expired"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: server.URL + "/poll", ExpiresAt: time.Now().Add(time.Minute)}
	err := client.WaitForGrant(context.Background(), ticket, "notion")

	var refused *GrantRefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("WaitForGrant() error = %v, want GrantRefusedError", err)
	}
	if polls.Load() != 1 {
		t.Errorf("polled %d times after terminal state, want 1", polls.Load())
	}
}

func TestWaitForGrantDeadline(t *testing.T) {
	fastPolling(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "pending"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: server.URL + "/poll", ExpiresAt: time.Now().Add(20 * time.Millisecond)}

	start := time.Now()
	err := client.WaitForGrant(context.Background(), ticket, "notion")
	if !errors.Is(err, ErrApprovalTimeout) {
		t.Fatalf("WaitForGrant() error = %v, want ErrApprovalTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout detection took %v", elapsed)
	}
}

func TestWaitForGrantPollErrorClassified(t *testing.T) {
	fastPolling(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "no_agent_session"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket := &GrantTicket{PollURL: server.URL + "/poll", ExpiresAt: time.Now().Add(time.Minute)}
	err := client.WaitForGrant(context.Background(), ticket, "notion")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("WaitForGrant() error = %v, want AuthError", err)
	}
	if authErr.Kind != KindNoSession {
		t.Errorf("classified kind = %q, want %q", authErr.Kind, KindNoSession)
	}
}

func TestObtainGrantRequiresSession(t *testing.T) {
	client := NewClient("https://broker.invalid", "", "")
	err := client.ObtainGrant(context.Background(), "notion", []string{"search"}, time.Hour, nil)

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != KindNoSession {
		t.Fatalf("ObtainGrant() without session = %v, want KindNoSession", err)
	}
}

func TestRequestGrantBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		payload := string(raw)
		for _, want := range []string{`"service":"graph"`, `"scopes":["Files.Read","User.Read"]`, `"duration":3600`} {
			if !strings.Contains(payload, want) {
				t.Errorf("request body %s missing %s", payload, want)
			}
		}
		fmt.Fprint(w, `{"requestId": "req-9", "status": "pending", "pollUrl": "/poll", "approveUrl": "https://broker.test/approve", "expiresAt": "2031-01-01T00:00:00Z"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "as-test", "")
	ticket, err := client.RequestGrant(context.Background(), "graph", []string{"Files.Read", "User.Read"}, time.Hour)
	if err != nil {
		t.Fatalf("RequestGrant() error: %v", err)
	}
	if ticket.PollURL != "/poll" || ticket.ApproveURL != "https://broker.test/approve" {
		t.Errorf("ticket = %+v", ticket)
	}
	if ticket.ExpiresAt.IsZero() {
		t.Error("expiresAt not parsed")
	}
}
