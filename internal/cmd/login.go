package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/agentgate/agentgate/internal/broker"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/session"
)

// DoLogin registers this device with the broker, waits for the operator to
// approve the enrollment, and persists the resulting agent session.
func DoLogin(cfg *config.Config, options *Options) {
	ctx := context.Background()
	store := session.NewStore(cfg.SessionFile)

	if existing, ok := store.Load(); ok {
		log.Debugf("replacing existing session %s...", existing[:min(8, len(existing))])
	}

	client := broker.NewClient(cfg.BrokerURL, "", cfg.ProxyURL)
	reg, err := client.Register(ctx, cfg.AgentName)
	if err != nil {
		fail(err)
	}

	if reg.AgentSessionID == "" {
		fmt.Printf("Confirm this device with code: %s\n", reg.Code)
		if reg.VerifyURL != "" {
			fmt.Printf("Verify at: %s\n", reg.VerifyURL)
			if open := openURLFunc(options); open != nil {
				if errOpen := open(reg.VerifyURL); errOpen != nil {
					log.Debugf("failed to open verify URL: %v", errOpen)
				}
			}
		}
		fmt.Println("Waiting for approval...")
	}

	sessionID, err := client.WaitForRegistration(ctx, reg)
	if err != nil {
		fail(err)
	}

	if err = store.Save(sessionID); err != nil {
		fail(fmt.Errorf("save session: %w", err))
	}

	fmt.Printf("Login successful. Session saved to %s\n", store.Path())
}
