package main

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// setupLog silences logging unless a log file is requested. Writing to
// stderr would tear up the TUI.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	if logFile := os.Getenv("PRANKDECK_LOGFILE"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
		log.SetLevel(log.InfoLevel)
		if os.Getenv("PRANKDECK_DEBUG") != "" {
			log.SetLevel(log.DebugLevel)
		}
		return f.Close, nil
	}
	return func() error { return nil }, nil
}
