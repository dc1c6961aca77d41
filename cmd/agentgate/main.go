// Package main provides the entry point for the AgentGate CLI.
// The CLI talks to an authorization broker that proxies third-party APIs
// (Notion, Microsoft Graph) on behalf of registered agents: it manages the
// local agent session, requests scoped grants, and issues proxied calls.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/agentgate/agentgate/internal/buildinfo"
	"github.com/agentgate/agentgate/internal/cmd"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/logging"
	"github.com/agentgate/agentgate/internal/util"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, and dispatches to the
// selected command.
func main() {
	var login bool
	var logout bool
	var status bool
	var requestService string
	var notionSearch string
	var notionPages string
	var graphDrive string
	var graphDriveSet bool
	var graphDownload string
	var outPath string
	var noBrowser bool
	var configPath string
	var showVersion bool

	flag.BoolVar(&login, "login", false, "Register this device with the broker")
	flag.BoolVar(&logout, "logout", false, "Invalidate and remove the local agent session")
	flag.BoolVar(&status, "status", false, "Show session and per-service grant status")
	flag.StringVar(&requestService, "request", "", "Request a grant for the named service")
	flag.StringVar(&notionSearch, "search", "", "Search the Notion workspace")
	flag.StringVar(&notionPages, "page", "", "Fetch Notion pages by id (comma-separated)")
	flag.StringVar(&graphDrive, "drive", "", "List a OneDrive folder (empty path lists the root)")
	flag.StringVar(&graphDownload, "download", "", "Download a OneDrive item by id")
	flag.StringVar(&outPath, "o", "", "Output file for downloads (defaults to stdout)")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open verify/approve URLs in a browser")
	flag.StringVar(&configPath, "config", config.DefaultConfigPath(), "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Print version information")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "drive" {
			graphDriveSet = true
		}
	})

	if showVersion {
		fmt.Printf("AgentGate Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	// Load environment variables from .env if present.
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
			if !errors.Is(errLoad, os.ErrNotExist) {
				log.WithError(errLoad).Warn("failed to load .env file")
			}
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err = logging.ConfigureLogOutput(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	util.SetLogLevel(cfg.Debug)

	options := &cmd.Options{NoBrowser: noBrowser}

	switch {
	case login:
		cmd.DoLogin(cfg, options)
	case logout:
		cmd.DoLogout(cfg)
	case status:
		cmd.DoStatus(cfg)
	case requestService != "":
		cmd.DoRequest(cfg, requestService, options)
	case notionSearch != "":
		cmd.DoNotionSearch(cfg, notionSearch, options)
	case notionPages != "":
		cmd.DoNotionPages(cfg, notionPages, options)
	case graphDriveSet:
		cmd.DoGraphDrive(cfg, graphDrive, options)
	case graphDownload != "":
		cmd.DoGraphDownload(cfg, graphDownload, outPath, options)
	default:
		flag.Usage()
		os.Exit(1)
	}
}
