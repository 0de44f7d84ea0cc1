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

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/pintosfs/pintosfs/clock"
	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestReadMissThenHit(t *testing.T) {
	dev := blockdev.NewMemDevice(8)
	var seed blockdev.Sector
	copy(seed[:], "sector zero")
	require.NoError(t, dev.WriteSector(0, &seed))

	c := cache.New(dev, 4)

	p, err := c.Access(0, false)
	require.NoError(t, err)
	assert.Equal(t, seed, *p.Data())
	p.Release()

	hits, misses, _ := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)

	p2, err := c.Access(0, false)
	require.NoError(t, err)
	p2.Release()

	hits, misses, _ = c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestWriteMarksDirtyAndFlushes(t *testing.T) {
	dev := blockdev.NewMemDevice(2)
	c := cache.New(dev, 2)

	p, err := c.Access(1, true)
	require.NoError(t, err)
	data := p.Data()
	copy(data[:], "dirty payload")
	p.Release()

	require.NoError(t, c.FlushAll(false))

	var got blockdev.Sector
	require.NoError(t, dev.ReadSector(1, &got))
	assert.Contains(t, string(got[:len("dirty payload")]), "dirty payload")
}

// TestSixtyFiveDistinctSectorsCauseEviction exercises a 64-entry cache
// touched by 65 distinct sectors: the 65th access must evict exactly one
// slot, and every dirty slot evicted must have reached the device.
func TestSixtyFiveDistinctSectorsCauseEviction(t *testing.T) {
	dev := blockdev.NewMemDevice(100)
	c := cache.New(dev, 64)

	for i := blockdev.SectorNum(0); i < 65; i++ {
		p, err := c.Access(i, true)
		require.NoError(t, err)
		data := p.Data()
		data[0] = byte(i)
		p.Release()
	}

	_, _, evictions := c.Stats()
	assert.Equal(t, int64(1), evictions)

	var sec0 blockdev.Sector
	require.NoError(t, dev.ReadSector(0, &sec0))
	assert.Equal(t, byte(0), sec0[0])
}

func TestPrefetchIsBestEffortAndPopulatesCache(t *testing.T) {
	dev := blockdev.NewMemDevice(4)
	var seed blockdev.Sector
	copy(seed[:], "ahead")
	require.NoError(t, dev.WriteSector(2, &seed))

	c := cache.New(dev, 4)
	c.Prefetch(2)

	require.Eventually(t, func() bool {
		_, misses, _ := c.Stats()
		return misses >= 1
	}, time.Second, time.Millisecond)
}

func TestStartFlusherRunsOnTick(t *testing.T) {
	dev := blockdev.NewMemDevice(1)
	c := cache.New(dev, 1)

	p, err := c.Access(0, true)
	require.NoError(t, err)
	data := p.Data()
	data[0] = 0x42
	p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	fc := &clock.FakeClock{WaitTime: time.Millisecond}
	c.StartFlusher(ctx, g, fc, time.Millisecond)

	require.Eventually(t, func() bool {
		var got blockdev.Sector
		_ = dev.ReadSector(0, &got)
		return got[0] == 0x42
	}, time.Second, time.Millisecond)

	cancel()
	_ = g.Wait()
}
