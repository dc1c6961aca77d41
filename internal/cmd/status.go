package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentgate/agentgate/internal/broker"
	"github.com/agentgate/agentgate/internal/config"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusBadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// DoStatus reports session presence and the broker-side grant state for every
// configured service.
func DoStatus(cfg *config.Config) {
	client, store := newBrokerClient(cfg)

	if client.SessionID() == "" {
		fail(&broker.AuthError{Kind: broker.KindNoSession})
	}

	fmt.Println(statusTitleStyle.Render("Agent session"))
	fmt.Printf("  %s (%s)\n\n", statusOKStyle.Render("registered"), store.Path())

	services := make([]string, 0, len(cfg.Services))
	for name := range cfg.Services {
		services = append(services, name)
	}
	sort.Strings(services)

	fmt.Println(statusTitleStyle.Render("Grants"))
	ctx := context.Background()
	for _, service := range services {
		info, err := client.GrantStatus(ctx, service)
		switch {
		case err != nil:
			fmt.Printf("  %-10s %s\n", service, statusDimStyle.Render("unknown: "+err.Error()))
		case info.HasGrant:
			detail := strings.Join(info.Scopes, ", ")
			if !info.ExpiresAt.IsZero() {
				detail += ", expires in " + time.Until(info.ExpiresAt).Round(time.Minute).String()
			}
			fmt.Printf("  %-10s %s (%s)\n", service, statusOKStyle.Render("granted"), detail)
		default:
			fmt.Printf("  %-10s %s\n", service, statusBadStyle.Render("no grant"))
		}
	}
}
