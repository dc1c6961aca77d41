package cmd

import (
	"context"
	"fmt"

	"github.com/agentgate/agentgate/internal/broker"
	"github.com/agentgate/agentgate/internal/config"
)

// DoRequest runs one explicit grant request-and-poll cycle for the service.
func DoRequest(cfg *config.Config, service string, options *Options) {
	client, _ := newBrokerClient(cfg)
	if client.SessionID() == "" {
		fail(&broker.AuthError{Kind: broker.KindNoSession, Service: service})
	}

	svc := cfg.Service(service)
	err := client.ObtainGrant(context.Background(), service, svc.Scopes, svc.GrantDuration(), openURLFunc(options))
	if err != nil {
		fail(err)
	}

	fmt.Printf("Grant for %s is active.\n", service)
}
