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

package cfg_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/cfg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsRegistersEveryFlag(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, cfg.BindFlags(fs))

	for _, name := range []string{
		"device-path", "device-sectors", "format",
		"scheduler-mode", "timer-freq", "max-donation-depth",
		"cache-entries", "flush-interval-ticks", "read-ahead",
		"log-severity", "log-format", "log-file",
		"metrics", "metrics-port",
		"exit-on-invariant-violation", "debug-mutex",
	} {
		assert.NotNil(t, fs.Lookup(name), "expected flag %q to be registered", name)
	}
}

func TestDefaultConfigPassesValidation(t *testing.T) {
	c := cfg.GetDefaultConfig()
	assert.NoError(t, cfg.ValidateConfig(&c))
}

func TestRationalizeRaisesSeverityWhenMutexDebugEnabled(t *testing.T) {
	c := cfg.GetDefaultConfig()
	c.Debug.LogMutex = true

	require.NoError(t, cfg.Rationalize(&c))

	assert.Equal(t, cfg.TraceLogSeverity, c.Logging.Severity)
}

func TestValidateRejectsBadSchedulerMode(t *testing.T) {
	c := cfg.GetDefaultConfig()
	c.Scheduler.Mode = "round-robin"

	assert.Error(t, cfg.ValidateConfig(&c))
}

func TestValidateRejectsNonPositiveCacheEntries(t *testing.T) {
	c := cfg.GetDefaultConfig()
	c.Cache.Entries = 0

	assert.Error(t, cfg.ValidateConfig(&c))
}

func TestValidateRejectsBadLogRotateConfig(t *testing.T) {
	c := cfg.GetDefaultConfig()
	c.Logging.LogRotate.MaxFileSizeMb = 0

	assert.Error(t, cfg.ValidateConfig(&c))
}
