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

// Package cache is the write-back sector cache sitting between
// internal/inode and internal/blockdev: a fixed number of 512-byte slots,
// CLOCK (second-chance) replacement, a periodic background flush, and
// single-sector read-ahead.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pintosfs/pintosfs/clock"
	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/kernlog"
	"github.com/pintosfs/pintosfs/internal/kernmetrics"
	"github.com/pintosfs/pintosfs/internal/kernpanic"
	"golang.org/x/sync/errgroup"
)

// entry is one cache slot.
type entry struct {
	data     blockdev.Sector
	sector   blockdev.SectorNum
	free     bool
	openCnt  int
	accessed bool
	dirty    bool
}

// Cache is a fixed-capacity write-back cache in front of a blockdev.Device.
// All bookkeeping is guarded by mu; disk I/O happens while mu is held,
// matching spec.md's "the cache holds its lock across the underlying
// disk I/O a miss requires" concurrency contract.
type Cache struct {
	mu      sync.Mutex
	dev     blockdev.Device
	entries []entry
	hand    int // CLOCK hand, an index into entries

	hits, misses, evictions int64

	metrics *kernmetrics.Metrics
}

// New creates a Cache with the given number of slots in front of dev.
func New(dev blockdev.Device, capacity int) *Cache {
	kernpanic.Assert(capacity > 0, "cache: capacity must be positive, got %d", capacity)
	c := &Cache{
		dev:     dev,
		entries: make([]entry, capacity),
	}
	for i := range c.entries {
		c.entries[i].free = true
	}
	return c
}

// SetMetrics attaches m as the destination for this cache's hit/miss/
// eviction counters. Recording is best-effort and happens against
// context.Background(), since Access and the CLOCK eviction path run
// under mu rather than any caller-supplied context.
func (c *Cache) SetMetrics(m *kernmetrics.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Pinned is a held reference to a cache slot's buffer, obtained from
// Access. Its Data must not be read or written after Release.
type Pinned struct {
	c     *Cache
	index int
}

// Data returns the slot's 512-byte buffer. Mutating it does not mark the
// slot dirty by itself; callers that write must have requested markDirty
// in Access, or call MarkDirty explicitly.
func (p *Pinned) Data() *blockdev.Sector {
	return &p.c.entries[p.index].data
}

// MarkDirty flags the pinned slot for write-back.
func (p *Pinned) MarkDirty() {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.entries[p.index].dirty = true
}

// Release unpins the slot, making it eligible for CLOCK eviction again.
func (p *Pinned) Release() {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.entries[p.index].openCnt--
	kernpanic.Assert(p.c.entries[p.index].openCnt >= 0, "cache: slot %d released more times than acquired", p.index)
}

// Access returns a pinned handle to sector's cached contents, loading it
// from disk on a miss. markDirty pre-marks the slot dirty, for callers
// that are about to overwrite the whole sector and don't need to read it
// first (mirrors cache.c's access-for-write path).
func (c *Cache) Access(sector blockdev.SectorNum, markDirty bool) (*Pinned, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.find(sector); ok {
		c.hits++
		if c.metrics != nil {
			c.metrics.CacheHit(context.Background())
		}
		c.entries[idx].accessed = true
		c.entries[idx].openCnt++
		if markDirty {
			c.entries[idx].dirty = true
		}
		return &Pinned{c: c, index: idx}, nil
	}

	c.misses++
	if c.metrics != nil {
		c.metrics.CacheMiss(context.Background())
	}
	idx, err := c.evictLocked()
	if err != nil {
		return nil, err
	}

	e := &c.entries[idx]
	if !markDirty {
		if err := c.dev.ReadSector(sector, &e.data); err != nil {
			kernpanic.Fatal(err, "cache: reading sector %d", sector)
		}
	} else {
		e.data = blockdev.Sector{}
	}

	e.sector = sector
	e.free = false
	e.accessed = true
	e.dirty = markDirty
	e.openCnt = 1

	return &Pinned{c: c, index: idx}, nil
}

// find returns the slot index holding sector, if any. Callers must hold mu.
func (c *Cache) find(sector blockdev.SectorNum) (int, bool) {
	for i := range c.entries {
		if !c.entries[i].free && c.entries[i].sector == sector {
			return i, true
		}
	}
	return -1, false
}

// evictLocked finds a free slot or evicts one via CLOCK, returning its
// index. Callers must hold mu. A slot that is pinned (openCnt > 0) is
// never a candidate; if every slot is pinned this is a kernel-level
// invariant violation, since callers are expected to release what they
// no longer need.
func (c *Cache) evictLocked() (int, error) {
	for i := range c.entries {
		if c.entries[i].free {
			return i, nil
		}
	}

	n := len(c.entries)
	for scanned := 0; scanned < 2*n; scanned++ {
		idx := c.hand
		c.hand = (c.hand + 1) % n

		e := &c.entries[idx]
		if e.openCnt > 0 {
			continue
		}
		if e.accessed {
			e.accessed = false
			continue
		}

		if e.dirty {
			if err := c.dev.WriteSector(e.sector, &e.data); err != nil {
				kernpanic.Fatal(err, "cache: writing back sector %d", e.sector)
			}
		}
		c.evictions++
		if c.metrics != nil {
			c.metrics.CacheEviction(context.Background())
		}
		e.free = true
		return idx, nil
	}

	kernpanic.Assert(false, "cache: no evictable slot found after scanning %d slots twice; every slot is pinned", n)
	return -1, fmt.Errorf("unreachable")
}

// FlushAll writes back every dirty slot. If clear is true, slots are also
// marked free afterward (used when unmounting).
func (c *Cache) FlushAll(clear bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		e := &c.entries[i]
		if e.free {
			continue
		}
		if e.dirty {
			if err := c.dev.WriteSector(e.sector, &e.data); err != nil {
				return fmt.Errorf("cache: flushing sector %d: %w", e.sector, err)
			}
			e.dirty = false
		}
		if clear {
			e.free = true
		}
	}
	return nil
}

// StartFlusher launches a background goroutine, managed by an
// errgroup.Group, that calls FlushAll every period of simulated time
// (measured via clk), until ctx is canceled. Grounded on cache.c's
// func_periodic_writer, which wakes every 4*TIMER_FREQ ticks; callers
// compute period from cfg.SchedulerConfig.TimerFreqHz and
// cfg.CacheConfig.FlushIntervalTicks.
func (c *Cache) StartFlusher(ctx context.Context, g *errgroup.Group, clk clock.Clock, period time.Duration) {
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-clk.After(period):
				if err := c.FlushAll(false); err != nil {
					kernlog.Errorf("cache: periodic flush failed: %v", err)
					return err
				}
			}
		}
	})
}

// Prefetch loads sector into the cache in the background if it is not
// already present, discarding the result if the read fails (read-ahead is
// best-effort, never fatal). Grounded on cache.c's ahead_reader.
func (c *Cache) Prefetch(sector blockdev.SectorNum) {
	go func() {
		p, err := c.Access(sector, false)
		if err != nil {
			kernlog.Warnf("cache: read-ahead for sector %d failed: %v", sector, err)
			return
		}
		p.Release()
	}()
}

// Stats returns cumulative hit/miss/eviction counts, for kernmetrics and
// tests asserting on cache behavior.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
