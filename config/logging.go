package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger from the logs section.
func SetupLogging() {
	level := logrus.InfoLevel
	format := "text"
	if AppConfig != nil {
		if parsed, err := logrus.ParseLevel(AppConfig.Logs.Level); err == nil {
			level = parsed
		}
		if AppConfig.Logs.Format != "" {
			format = AppConfig.Logs.Format
		}
	}

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
