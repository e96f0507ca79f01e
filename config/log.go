// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/psbtv2/psbtv2"
	"github.com/btcsuite/psbtv2/rawpsbt"
	"github.com/btcsuite/psbtv2/roles"
	"github.com/jrick/logrotate/rotator"
)

// LogFilename is the name of the log file written to Config.LogDir.
const LogFilename = "psbtv2.log"

// subsystems maps each subsystem tag to the package logger it drives.
var subsystems = map[string]func(btclog.Logger){
	"RPSB": rawpsbt.UseLogger,
	"PSBT": psbtv2.UseLogger,
	"ROLE": roles.UseLogger,
}

// LogWriter writes log lines to stdout and, once a rotator is set up, to
// the rotated log file.
type LogWriter struct {
	stdout  io.Writer
	rotator *rotator.Rotator
}

// Write writes b to every configured destination.
func (w *LogWriter) Write(b []byte) (int, error) {
	if w.stdout != nil {
		_, _ = w.stdout.Write(b)
	}

	if w.rotator != nil {
		return w.rotator.Write(b)
	}

	return len(b), nil
}

// Close closes the log file if one is open.
func (w *LogWriter) Close() error {
	if w.rotator != nil {
		return w.rotator.Close()
	}

	return nil
}

// SetupLogging installs loggers for every subsystem at the configured level.
// The returned writer must be closed on shutdown.
func SetupLogging(cfg *Config) (*LogWriter, error) {
	return setupLogging(cfg, os.Stdout)
}

func setupLogging(cfg *Config, stdout io.Writer) (*LogWriter, error) {
	level, ok := btclog.LevelFromString(cfg.DebugLevel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.DebugLevel)
	}

	w := &LogWriter{stdout: stdout}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log "+
				"directory: %w", err)
		}

		r, err := rotator.New(
			filepath.Join(cfg.LogDir, LogFilename),
			int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create file "+
				"rotator: %w", err)
		}
		w.rotator = r
	}

	backend := btclog.NewBackend(w)
	for tag, useLogger := range subsystems {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		useLogger(logger)
	}

	return w, nil
}
