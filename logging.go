package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

var logFile *os.File

// setupLogging writes to stderr and, when logLocation is set, to that file too
func setupLogging(logDebug, logTrace bool, logLocation string) error {

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:  true,
		DisableSorting: true,
	})

	switch {
	case logTrace:
		log.SetLevel(log.TraceLevel)
	case logDebug:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if logLocation == "" {
		return nil
	}

	f, err := os.OpenFile(logLocation, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "Failed to open log file %s for output", logLocation)
	}
	logFile = f

	// Write everything at or above the chosen level to the file too
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, l := range log.AllLevels {
		if log.IsLevelEnabled(l) {
			levels = append(levels, l)
		}
	}

	log.AddHook(&writer.Hook{
		Writer:    logFile,
		LogLevels: levels,
	})

	return nil
}

func closeLogging() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
