package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/agentgate/agentgate/internal/config"
)

// DoLogout invalidates the broker-side session best-effort and removes the
// local session files. The local cleanup always happens.
func DoLogout(cfg *config.Config) {
	client, store := newBrokerClient(cfg)

	if client.SessionID() != "" {
		if err := client.DeleteSession(context.Background()); err != nil {
			log.Warnf("broker session deletion failed: %v", err)
		}
	}

	store.Clear()
	fmt.Println("Logged out.")
}
