// Package logging builds the structured logger shared by the server and
// client entry points.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Entry pre-populated with static fields, the way the
// reference server built its per-subsystem loggers: every call site gets a
// consistent "mode"/"version" prefix instead of reaching for a bare global.
func New(mode, version string) *logrus.Entry {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	log.SetLevel(levelFromEnv())

	return log.WithFields(logrus.Fields{
		"mode":    mode,
		"version": version,
	})
}

func levelFromEnv() logrus.Level {
	raw := os.Getenv("PSYNC_LOG")
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
