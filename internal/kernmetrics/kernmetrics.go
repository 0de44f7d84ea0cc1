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

// Package kernmetrics is the kernel's counters: buffer-cache hit/miss/
// eviction and scheduler context switches. Grounded on common/
// otel_metrics.go's meter/counter shape (one otel.Meter,
// one struct of metric.Int64Counter fields, a constructor that joins
// every registration error), scaled down to the handful of counters a
// teaching kernel's core actually needs.
package kernmetrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("pintosfs/kernel")

// Metrics is the kernel's counter set: cache effectiveness and
// scheduler activity.
type Metrics struct {
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheEvictions  metric.Int64Counter
	contextSwitches metric.Int64Counter
}

// New registers the kernel's counters against the global otel meter
// provider installed at the time of the call.
func New() (*Metrics, error) {
	meter := otel.Meter("pintosfs/kernel")
	cacheHits, err1 := meter.Int64Counter("cache/hit_count",
		metric.WithDescription("The cumulative number of buffer-cache accesses satisfied without a disk read."))
	cacheMisses, err2 := meter.Int64Counter("cache/miss_count",
		metric.WithDescription("The cumulative number of buffer-cache accesses that required a disk read."))
	cacheEvictions, err3 := meter.Int64Counter("cache/eviction_count",
		metric.WithDescription("The cumulative number of buffer-cache entries evicted to make room for another sector."))
	contextSwitches, err4 := meter.Int64Counter("sched/context_switch_count",
		metric.WithDescription("The cumulative number of times the scheduler's bookkeeping changed which thread is current."))

	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &Metrics{
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheEvictions:  cacheEvictions,
		contextSwitches: contextSwitches,
	}, nil
}

// CacheHit records a buffer-cache access satisfied from an already
// resident entry.
func (m *Metrics) CacheHit(ctx context.Context) { m.cacheHits.Add(ctx, 1) }

// CacheMiss records a buffer-cache access that required reading the
// sector from the block device.
func (m *Metrics) CacheMiss(ctx context.Context) { m.cacheMisses.Add(ctx, 1) }

// CacheEviction records a buffer-cache entry being written back and
// repurposed for a different sector.
func (m *Metrics) CacheEviction(ctx context.Context) { m.cacheEvictions.Add(ctx, 1) }

// ContextSwitch records the scheduler dispatching a different thread
// than the one that was previously current.
func (m *Metrics) ContextSwitch(ctx context.Context) { m.contextSwitches.Add(ctx, 1) }
