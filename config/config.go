// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads the settings shared by tools built on the PSBT role
// workflow and turns them into role options and loggers.
package config

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/psbtv2/pkg/btcunit"
	"github.com/btcsuite/psbtv2/roles"
	"github.com/jessevdk/go-flags"
)

const (
	defaultDebugLevel     = "info"
	defaultMaxLogFileSize = 10
	defaultMaxLogFiles    = 3

	// defaultMaxFeeRate mirrors roles.DefaultMaxFeeRate in sat/vB.
	defaultMaxFeeRate = 25_000

	// minTxVersion is the lowest transaction version a v2 document may
	// describe.
	minTxVersion = 2
)

// parserOptions leaves error printing to the caller.
const parserOptions = flags.HelpFlag | flags.PassDoubleDash

var (
	// ErrInvalidLevel is returned for an unknown debug level.
	ErrInvalidLevel = errors.New("invalid debug level")

	// ErrInvalidValue is returned for an out of range setting.
	ErrInvalidValue = errors.New("invalid config value")
)

// Config holds the workflow and logging settings.
type Config struct {
	ConfigFile string `long:"configfile" description:"Path to an INI configuration file" no-ini:"true"`

	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
	LogDir         string `long:"logdir" description:"Directory to write a rotated log file to; stdout only when empty"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum log file size in MB before it is rotated"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum number of rotated log files to keep"`

	TxVersion        int32  `long:"txversion" description:"Transaction version of created documents"`
	FallbackLockTime uint32 `long:"fallbacklocktime" description:"Lock time used when no input requires one"`
	MaxFeeRate       int64  `long:"maxfeerate" description:"Highest fee rate in sat/vB the extractor accepts"`
	DustRelayFee     int64  `long:"dustrelayfee" description:"Relay fee in sat/kvB used to detect dust outputs"`
	DisableDustCheck bool   `long:"nodustcheck" description:"Do not reject extracted transactions with dust outputs"`
}

// DefaultConfig returns a config with the default settings.
func DefaultConfig() Config {
	return Config{
		DebugLevel:     defaultDebugLevel,
		MaxLogFileSize: defaultMaxLogFileSize,
		MaxLogFiles:    defaultMaxLogFiles,
		TxVersion:      roles.DefaultTxVersion,
		MaxFeeRate:     defaultMaxFeeRate,
		DustRelayFee:   int64(txrules.DefaultRelayFeePerKb),
	}
}

// Load builds a config from the defaults, the INI file named by
// --configfile if any, and args, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	// Pre-parse the arguments to pick up the config file.
	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, parserOptions).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	cfg := preCfg
	if preCfg.ConfigFile != "" {
		iniParser := flags.NewIniParser(
			flags.NewParser(&cfg, parserOptions),
		)
		if err := iniParser.ParseFile(preCfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w",
				preCfg.ConfigFile, err)
		}

		// Parse the arguments again so they take precedence over the
		// file.
		if _, err := flags.NewParser(&cfg, parserOptions).ParseArgs(
			args,
		); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings are in range.
func (c *Config) Validate() error {
	if _, ok := btclog.LevelFromString(c.DebugLevel); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, c.DebugLevel)
	}

	switch {
	case c.MaxLogFileSize <= 0:
		return fmt.Errorf("%w: maxlogfilesize %d", ErrInvalidValue,
			c.MaxLogFileSize)

	case c.MaxLogFiles < 0:
		return fmt.Errorf("%w: maxlogfiles %d", ErrInvalidValue,
			c.MaxLogFiles)

	case c.TxVersion < minTxVersion:
		return fmt.Errorf("%w: txversion %d is below %d",
			ErrInvalidValue, c.TxVersion, minTxVersion)

	case c.MaxFeeRate <= 0:
		return fmt.Errorf("%w: maxfeerate %d", ErrInvalidValue,
			c.MaxFeeRate)

	case c.DustRelayFee < 0:
		return fmt.Errorf("%w: dustrelayfee %d", ErrInvalidValue,
			c.DustRelayFee)
	}

	return nil
}

// CreatorOptions returns the options for roles.NewCreator.
func (c *Config) CreatorOptions() []roles.CreatorOption {
	opts := []roles.CreatorOption{roles.WithTxVersion(c.TxVersion)}
	if c.FallbackLockTime != 0 {
		opts = append(
			opts, roles.WithFallbackLockTime(c.FallbackLockTime),
		)
	}

	return opts
}

// ExtractorOptions returns the options for the extractor.
func (c *Config) ExtractorOptions() []roles.ExtractorOption {
	opts := []roles.ExtractorOption{
		roles.WithMaxFeeRate(
			btcunit.NewSatPerVByte(btcutil.Amount(c.MaxFeeRate)),
		),
		roles.WithDustRelayFee(btcutil.Amount(c.DustRelayFee)),
	}
	if c.DisableDustCheck {
		opts = append(opts, roles.WithoutDustCheck())
	}

	return opts
}
