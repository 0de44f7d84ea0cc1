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

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backups) or a positive value")
	}
	return nil
}

func isValidScheduler(s *SchedulerConfig) error {
	if s.Mode != SchedModePriority && s.Mode != SchedModeMLFQ {
		return fmt.Errorf("scheduler.mode must be priority or mlfq, got %q", s.Mode)
	}
	if s.TimerFreqHz <= 0 {
		return fmt.Errorf("scheduler.timer-freq-hz must be positive")
	}
	if s.MaxDonationDepth <= 0 {
		return fmt.Errorf("scheduler.max-donation-depth must be positive")
	}
	return nil
}

func isValidCache(c *CacheConfig) error {
	if c.Entries <= 0 {
		return fmt.Errorf("cache.entries must be positive")
	}
	if c.FlushIntervalTicks <= 0 {
		return fmt.Errorf("cache.flush-interval-ticks must be positive")
	}
	return nil
}

func isValidDevice(d *DeviceConfig) error {
	if d.Path == "" && d.Sectors <= 0 {
		return fmt.Errorf("device.sectors must be positive for an in-memory device")
	}
	return nil
}

// ValidateConfig returns a non-nil error if config cannot be booted from.
func ValidateConfig(config *Config) error {
	if err := isValidDevice(&config.Device); err != nil {
		return fmt.Errorf("error parsing device config: %w", err)
	}
	if err := isValidScheduler(&config.Scheduler); err != nil {
		return fmt.Errorf("error parsing scheduler config: %w", err)
	}
	if err := isValidCache(&config.Cache); err != nil {
		return fmt.Errorf("error parsing cache config: %w", err)
	}
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	return nil
}
