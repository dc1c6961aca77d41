// Package cmd implements the AgentGate CLI commands. Each Do* function runs
// one complete operation; fatal failures print a diagnosis with the concrete
// next action to stderr and exit with code 1.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentgate/agentgate/internal/broker"
	"github.com/agentgate/agentgate/internal/browser"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/pipeline"
	"github.com/agentgate/agentgate/internal/session"
)

// Options carries the shared command-line switches into the commands.
type Options struct {
	// NoBrowser suppresses automatic opening of verify and approve URLs.
	NoBrowser bool
}

// fail prints the failure with its remediation to stderr and exits non-zero.
func fail(err error) {
	var authErr *broker.AuthError
	if errors.As(err, &authErr) {
		fmt.Fprintln(os.Stderr, authErr.Remediation())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// openURLFunc returns the browser opener, or nil when suppressed.
func openURLFunc(options *Options) func(string) error {
	if options != nil && options.NoBrowser {
		return nil
	}
	return browser.OpenURL
}

// newBrokerClient loads the persisted session and builds a broker client
// with it. The session may be empty; callers that require one check
// SessionID themselves or rely on the pipeline's precondition.
func newBrokerClient(cfg *config.Config) (*broker.Client, *session.Store) {
	store := session.NewStore(cfg.SessionFile)
	sessionID, _ := store.Load()
	return broker.NewClient(cfg.BrokerURL, sessionID, cfg.ProxyURL), store
}

// newPipeline wires the request pipeline with per-service grant parameters
// from the configuration.
func newPipeline(cfg *config.Config, options *Options) *pipeline.Pipeline {
	client, _ := newBrokerClient(cfg)
	grantSpec := func(service string) pipeline.GrantSpec {
		svc := cfg.Service(service)
		return pipeline.GrantSpec{Scopes: svc.Scopes, Duration: svc.GrantDuration()}
	}
	return pipeline.New(client, cfg.AutoGrant, grantSpec, openURLFunc(options))
}
