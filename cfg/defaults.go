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

// Default boot-time constants, used both as pflag defaults and by tests
// constructing a Config without going through BindFlags.
const (
	DefaultDeviceSectors        = 8192
	DefaultTimerFreqHz          = 100
	DefaultMaxDonationDepth     = 8
	DefaultCacheEntries         = 64
	DefaultFlushIntervalTicks   = 400
	DefaultMetricsPrometheusPort = 9090
)

// GetDefaultLoggingConfig returns the logging configuration used before any
// flags or config file have been parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   LogFormatJSON,
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 2,
			Compress:        false,
			MaxFileSizeMb:   10,
		},
	}
}

// GetDefaultConfig returns a fully populated Config reflecting every flag
// default in BindFlags, for use by callers (and tests) that construct a
// Config directly rather than through viper.
func GetDefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Sectors: DefaultDeviceSectors,
		},
		Scheduler: SchedulerConfig{
			Mode:             SchedModePriority,
			TimerFreqHz:      DefaultTimerFreqHz,
			MaxDonationDepth: DefaultMaxDonationDepth,
		},
		Cache: CacheConfig{
			Entries:            DefaultCacheEntries,
			FlushIntervalTicks: DefaultFlushIntervalTicks,
			ReadAhead:          true,
		},
		Logging: GetDefaultLoggingConfig(),
		Metrics: MetricsConfig{
			PrometheusPort: DefaultMetricsPrometheusPort,
		},
	}
}
