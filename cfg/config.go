// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved boot-time configuration for the kernel.
// cmd/pintosfsd populates it through viper from the flags registered by
// BindFlags and their defaults; no config file is read. Rationalize and
// ValidateConfig derive and check dependent fields, but cmd/pintosfsd's
// boot path calls neither of them.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Debug      DebugConfig      `yaml:"debug"`
}

// DeviceConfig describes the backing block device the filesystem is
// mounted on.
type DeviceConfig struct {
	// Path to the backing file. Empty means an in-memory device.
	Path string `yaml:"path"`

	// Sectors is the device size, in 512-byte sectors. An in-memory
	// device is created with this many sectors, and a backing file is
	// created or resized to this size when it is opened.
	Sectors int64 `yaml:"sectors"`

	// Format wipes and reformats the device on boot.
	Format bool `yaml:"format"`
}

// SchedulerConfig selects and tunes the thread scheduler.
type SchedulerConfig struct {
	Mode SchedMode `yaml:"mode"`

	// TimerFreqHz is how many timer ticks the scheduler simulates per
	// second of wall-clock time.
	TimerFreqHz int `yaml:"timer-freq-hz"`

	// MaxDonationDepth bounds how far a priority donation chain is
	// followed before the scheduler gives up walking it.
	MaxDonationDepth int `yaml:"max-donation-depth"`
}

// CacheConfig tunes the buffer cache sitting in front of the block device.
type CacheConfig struct {
	// Entries is the number of 512-byte slots the cache holds.
	Entries int `yaml:"entries"`

	// FlushIntervalTicks is how many timer ticks elapse between
	// background flushes of dirty cache entries.
	FlushIntervalTicks int `yaml:"flush-interval-ticks"`

	// ReadAhead enables fetching the immediately-following sector into
	// the cache whenever a sequential read is detected.
	ReadAhead bool `yaml:"read-ahead"`
}

// LoggingConfig configures the structured kernel logger.
type LoggingConfig struct {
	Severity LogSeverity  `yaml:"severity"`
	Format   LogFormat    `yaml:"format"`
	FilePath ResolvedPath `yaml:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures lumberjack-backed log-file rotation.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// MetricsConfig configures the OpenTelemetry metrics exporter.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus-port"`
}

// DebugConfig toggles developer-facing behavior not meant for ordinary use.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	LogMutex                 bool `yaml:"log-mutex"`
}

// BindFlags registers every Config field as a pflag flag and binds it to
// viper under the matching dotted key, the way the teacher's generated
// cfg.BindFlags does for its own mount flags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var errs []error
	bind := func(key string) {
		if err := viper.BindPFlag(key, flagSet.Lookup(key)); err != nil {
			errs = append(errs, err)
		}
	}

	flagSet.StringP("device-path", "", "", "Path to the backing block device file; empty uses an in-memory device.")
	bind("device.path")

	flagSet.Int64P("device-sectors", "", 8192, "Device size in 512-byte sectors when creating a new backing file.")
	bind("device.sectors")

	flagSet.BoolP("format", "", false, "Wipe and reformat the device on boot.")
	bind("device.format")

	flagSet.StringP("scheduler-mode", "", "priority", "Thread scheduler: priority or mlfq.")
	bind("scheduler.mode")

	flagSet.IntP("timer-freq", "", 100, "Timer ticks simulated per second.")
	bind("scheduler.timer-freq-hz")

	flagSet.IntP("max-donation-depth", "", 8, "Maximum depth of a priority donation chain.")
	bind("scheduler.max-donation-depth")

	flagSet.IntP("cache-entries", "", 64, "Number of 512-byte slots in the buffer cache.")
	bind("cache.entries")

	flagSet.IntP("flush-interval-ticks", "", 400, "Timer ticks between background cache flushes.")
	bind("cache.flush-interval-ticks")

	flagSet.BoolP("read-ahead", "", true, "Prefetch the following sector on sequential reads.")
	bind("cache.read-ahead")

	flagSet.StringP("log-severity", "", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	bind("logging.severity")

	flagSet.StringP("log-format", "", "json", "Log format: text or json.")
	bind("logging.format")

	flagSet.StringP("log-file", "", "", "Path to a log file; empty logs to stderr.")
	bind("logging.file-path")

	flagSet.BoolP("metrics", "", false, "Export scheduler and cache metrics over Prometheus.")
	bind("metrics.enabled")

	flagSet.IntP("metrics-port", "", 9090, "Port the Prometheus metrics endpoint listens on.")
	bind("metrics.prometheus-port")

	flagSet.BoolP("exit-on-invariant-violation", "", false, "Exit the process when an internal invariant is violated.")
	bind("debug.exit-on-invariant-violation")

	flagSet.BoolP("debug-mutex", "", false, "Log when a mutex is held longer than expected.")
	bind("debug.log-mutex")

	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
