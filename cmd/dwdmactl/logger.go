package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/DerLukas15/dwdma"
	"github.com/sirupsen/logrus"
)

func configLogger(l *logrus.Logger, c *dwdma.Config) error {
	// set up our logging level
	logLevel, err := logrus.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return fmt.Errorf("%s; possible levels: %s", err, logrus.AllLevels)
	}
	l.SetLevel(logLevel)

	logFormat := strings.ToLower(c.Logging.Format)
	switch logFormat {
	case "text":
		l.Formatter = &logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		}
	case "json":
		l.Formatter = &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		}
	default:
		return fmt.Errorf("unknown log format `%s`. possible formats: %s", logFormat, []string{"text", "json"})
	}

	return nil
}
