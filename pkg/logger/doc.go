// Package logger provides the structured logging interface used across pixiedl.
//
// It wraps zerolog with colored console output on stderr, optional JSON
// output to a file, field helpers and a global logger instance.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//
//	log := logger.ForRun(logger.NewRunID(), galleryURL)
//	log.WithField("count", 42).Info("Discovery finished")
//	log.WithError(err).Warn("Network did not go idle")
//
// Tests pass NewNopLogger to discard output.
package logger
