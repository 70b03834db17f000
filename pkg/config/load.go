// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/streamverify/ingest/pkg/types"
)

// EnvPrefix prefixes the environment variables overriding file settings,
// e.g. STREAMVERIFY_BATCH_MAXFILES.
const EnvPrefix = "STREAMVERIFY"

// Load reads the configuration file at path on top of DefaultConfig. An empty path only applies
// defaults and environment variables.
func Load(path string) (Configuration, error) {
	return load(path, nil)
}

// flagKeys maps command line flags to the settings they override.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"status-address":  "statusAddress",
	"object-store":    "objectStoreRoot",
	"address-book":    "addressBookFile",
	"checkpoint-dir":  "checkpointDir",
	"consensus-ratio": "consensusRatio",
	"valid-dir":       "validDir",
}

// NewFlagSet returns the command line flags of the executable. Flags that are set take
// precedence over the environment and the configuration file.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path of the configuration file (YAML, JSON or TOML)")
	fs.String("log-level", DefaultConfig.Log.Level, "log level")
	fs.String("status-address", DefaultConfig.StatusAddress, "listen address of the status endpoint, empty disables it")
	fs.String("object-store", DefaultConfig.ObjectStoreRoot, "local directory mirroring the bucket")
	fs.String("address-book", DefaultConfig.AddressBookFile, "address book YAML file")
	fs.String("checkpoint-dir", DefaultConfig.CheckpointDir, "checkpoint database directory")
	fs.String("consensus-ratio", DefaultConfig.ConsensusRatio, "stake ratio that must agree on a file hash")
	fs.String("valid-dir", DefaultConfig.ValidDir, "directory verified files are archived into")
	return fs
}

// LoadFlags loads the configuration file named by the parsed "config" flag and applies the
// flags that were set.
func LoadFlags(fs *pflag.FlagSet) (Configuration, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return Configuration{}, errors.Wrap(err, "missing config flag")
	}
	return load(path, fs)
}

func load(path string, fs *pflag.FlagSet) (Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Configuration{}, errors.Wrapf(err, "failed binding flag %s", flag)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, errors.Wrapf(err, "failed reading config file %s", path)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig
	v.SetDefault("consensusRatio", d.ConsensusRatio)
	v.SetDefault("maxConcurrency", d.MaxConcurrency)
	v.SetDefault("requestTimeout", d.RequestTimeout)
	v.SetDefault("listBatchSize", d.ListBatchSize)
	v.SetDefault("requestsPerSecond", d.RequestsPerSecond)
	v.SetDefault("stopTimeout", d.StopTimeout)
	v.SetDefault("cycleInterval", d.CycleInterval)
	v.SetDefault("bypassHashMismatchUntilAfter", d.BypassHashMismatchUntilAfter)
	streams := make([]string, 0, len(d.Streams))
	for _, st := range d.Streams {
		streams = append(streams, st.String())
	}
	v.SetDefault("streams", streams)
	v.SetDefault("validDir", d.ValidDir)
	v.SetDefault("batch.maxFiles", d.Batch.MaxFiles)
	v.SetDefault("batch.maxItems", d.Batch.MaxItems)
	v.SetDefault("batch.flushInterval", d.Batch.FlushInterval)
	v.SetDefault("batch.pollFrequency", d.Batch.PollFrequency)
	v.SetDefault("batch.caughtUpWindow", d.Batch.CaughtUpWindow)
	v.SetDefault("batch.queueCapacity", d.Batch.QueueCapacity)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("objectStoreRoot", d.ObjectStoreRoot)
	v.SetDefault("addressBookFile", d.AddressBookFile)
	v.SetDefault("checkpointDir", d.CheckpointDir)
	v.SetDefault("statusAddress", d.StatusAddress)
}

func fromViper(v *viper.Viper) (Configuration, error) {
	c := Configuration{
		ConsensusRatio:               v.GetString("consensusRatio"),
		MaxConcurrency:               v.GetInt("maxConcurrency"),
		RequestTimeout:               v.GetDuration("requestTimeout"),
		ListBatchSize:                v.GetInt("listBatchSize"),
		RequestsPerSecond:            v.GetFloat64("requestsPerSecond"),
		StopTimeout:                  v.GetDuration("stopTimeout"),
		CycleInterval:                v.GetDuration("cycleInterval"),
		BypassHashMismatchUntilAfter: v.GetString("bypassHashMismatchUntilAfter"),
		ValidDir:                     v.GetString("validDir"),
		Batch: BatchConfiguration{
			MaxFiles:       v.GetInt("batch.maxFiles"),
			MaxItems:       v.GetUint64("batch.maxItems"),
			FlushInterval:  v.GetDuration("batch.flushInterval"),
			PollFrequency:  v.GetDuration("batch.pollFrequency"),
			CaughtUpWindow: v.GetDuration("batch.caughtUpWindow"),
			QueueCapacity:  v.GetInt("batch.queueCapacity"),
		},
		Log: LogConfiguration{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		ObjectStoreRoot: v.GetString("objectStoreRoot"),
		AddressBookFile: v.GetString("addressBookFile"),
		CheckpointDir:   v.GetString("checkpointDir"),
		StatusAddress:   v.GetString("statusAddress"),
	}

	for _, name := range v.GetStringSlice("streams") {
		st, err := types.ParseStreamType(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			return Configuration{}, err
		}
		c.Streams = append(c.Streams, st)
	}

	if err := c.Validate(); err != nil {
		return Configuration{}, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}
