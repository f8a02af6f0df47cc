package app

import (
	"strings"

	"github.com/classpad/classpad/pkg/logger"
)

// ConfigureLogging initialises the process logger from server configuration.
// An empty level means info.
func ConfigureLogging(level string) error {
	if level = strings.TrimSpace(level); level == "" {
		level = "info"
	}
	return logger.Init(level)
}
