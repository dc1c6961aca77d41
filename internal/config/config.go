// Package config provides configuration management for the AgentGate CLI.
// It handles loading and parsing the YAML configuration file and provides
// structured access to application settings including the broker endpoint,
// proxy configuration, automatic grant behavior, and per-service scope sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultBrokerURL is the broker endpoint used when neither the config file
// nor the environment overrides it.
const DefaultBrokerURL = "https://api.agentgate.dev"

// Config represents the application's configuration, loaded from a YAML file
// with environment variable overrides applied on top.
type Config struct {
	// BrokerURL is the base URL of the authorization broker.
	BrokerURL string `yaml:"broker-url" json:"broker-url" env:"AGENTGATE_BROKER_URL"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url" env:"AGENTGATE_PROXY_URL"`

	// AutoGrant enables automatic grant re-request when a proxied call fails
	// with a retryable authorization error. Enabled by default.
	AutoGrant bool `yaml:"auto-grant" json:"auto-grant" env:"AGENTGATE_AUTO_GRANT"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug" env:"AGENTGATE_DEBUG"`

	// LogDir, when set, redirects log output to rotating files in that directory.
	LogDir string `yaml:"log-dir" json:"log-dir" env:"AGENTGATE_LOG_DIR"`

	// SessionFile overrides the primary session file path.
	SessionFile string `yaml:"session-file" json:"session-file" env:"AGENTGATE_SESSION_FILE"`

	// AgentName is the name reported to the broker during registration.
	// Defaults to the local hostname.
	AgentName string `yaml:"agent-name" json:"agent-name" env:"AGENTGATE_AGENT_NAME"`

	// Services maps a service identifier to the scope set and grant duration
	// requested for it.
	Services map[string]ServiceConfig `yaml:"services" json:"services"`
}

// ServiceConfig describes the grant parameters for one downstream service.
type ServiceConfig struct {
	// Scopes is the capability set requested atomically for this service.
	Scopes []string `yaml:"scopes" json:"scopes"`

	// GrantMinutes is the requested grant lifetime in minutes.
	GrantMinutes int `yaml:"grant-minutes" json:"grant-minutes"`
}

// GrantDuration returns the configured grant lifetime, defaulting to one hour.
func (s ServiceConfig) GrantDuration() time.Duration {
	if s.GrantMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.GrantMinutes) * time.Minute
}

// defaultServices covers the services the bundled resource clients talk to.
func defaultServices() map[string]ServiceConfig {
	return map[string]ServiceConfig{
		"notion": {Scopes: []string{"read_content", "search"}, GrantMinutes: 60},
		"graph":  {Scopes: []string{"Files.Read", "User.Read"}, GrantMinutes: 60},
	}
}

// DefaultConfigPath returns the conventional config file location under the
// user's home directory, or empty when the home directory cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentgate", "config.yaml")
}

// LoadConfig reads the configuration from the given YAML file, fills defaults,
// and applies environment overrides. A missing file is not an error; the
// defaults plus environment are used instead.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		BrokerURL: DefaultBrokerURL,
		AutoGrant: true,
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if len(data) > 0 {
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	cfg.BrokerURL = strings.TrimRight(strings.TrimSpace(cfg.BrokerURL), "/")
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = DefaultBrokerURL
	}
	if cfg.AgentName == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.AgentName = hostname
		} else {
			cfg.AgentName = "agentgate"
		}
	}
	if cfg.Services == nil {
		cfg.Services = defaultServices()
	} else {
		for name, svc := range defaultServices() {
			if _, ok := cfg.Services[name]; !ok {
				cfg.Services[name] = svc
			}
		}
	}

	return cfg, nil
}

// Service returns the grant parameters for the named service. Unknown services
// fall back to an empty scope set with the default duration so the broker can
// reject or auto-resolve them.
func (c *Config) Service(name string) ServiceConfig {
	if c == nil || c.Services == nil {
		return ServiceConfig{}
	}
	return c.Services[name]
}
