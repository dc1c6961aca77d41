// Package session persists the opaque agent-session identifier that ties this
// CLI installation to the authorization broker. The identifier lives in a
// single owner-readable file; legacy locations from earlier releases are still
// honored on read and removed on clear.
package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// sessionIDFields lists the JSON field names that historically carried the
// session identifier, in precedence order.
var sessionIDFields = []string{"agentSessionId", "sessionId", "session_id", "id"}

// Store reads and writes the local agent-session file.
type Store struct {
	primary string
	legacy  []string
}

// NewStore builds a store rooted at the user's home directory. A non-empty
// primaryOverride replaces the default primary path; the legacy fallbacks are
// always scanned on load.
func NewStore(primaryOverride string) *Store {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	primary := filepath.Join(home, ".agentgate", "session.json")
	if primaryOverride != "" {
		primary = primaryOverride
	}
	return &Store{
		primary: primary,
		legacy: []string{
			filepath.Join(home, ".agentgate", "session"),
			filepath.Join(home, ".config", "agentgate", "session.json"),
		},
	}
}

// Path returns the primary session file location.
func (s *Store) Path() string {
	return s.primary
}

// Load scans the candidate files in precedence order and returns the first
// non-empty session identifier found. Missing or malformed files degrade to
// absent; Load never fails.
func (s *Store) Load() (string, bool) {
	for _, path := range append([]string{s.primary}, s.legacy...) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := parseSessionID(data); id != "" {
			return id, true
		}
	}
	return "", false
}

// parseSessionID extracts a session id from file contents. Structured JSON
// with a recognized field wins; otherwise the raw trimmed text is the id.
func parseSessionID(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return ""
	}
	if gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		if parsed.IsObject() {
			for _, field := range sessionIDFields {
				if v := strings.TrimSpace(parsed.Get(field).String()); v != "" {
					return v
				}
			}
			return ""
		}
	}
	return trimmed
}

// Save writes the trimmed identifier to the primary file with permissions
// restricted to the owning user, creating the parent directory if needed.
func (s *Store) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.primary), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.primary, []byte(strings.TrimSpace(id)+"\n"), 0o600)
}

// Clear removes the primary file and any legacy candidates. Already-absent
// files are not an error; deletion failures are swallowed.
func (s *Store) Clear() {
	for _, path := range append([]string{s.primary}, s.legacy...) {
		_ = os.Remove(path)
	}
}
