package util

import (
	log "github.com/sirupsen/logrus"
)

// SetLogLevel configures the logrus log level based on the debug flag.
// It sets the log level to DebugLevel if debug mode is enabled, otherwise to InfoLevel.
func SetLogLevel(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
		log.Debug("debug mode enabled")
		return
	}
	log.SetLevel(log.InfoLevel)
}
