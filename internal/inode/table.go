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

package inode

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"
	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/cache"
	"github.com/pintosfs/pintosfs/internal/freemap"
	"github.com/pintosfs/pintosfs/internal/kernlog"
	"github.com/pintosfs/pintosfs/internal/ondisk"
)

// Table is the refcounted open-inode table: at most one *Inode exists per
// sector at a time, grounded on inode.c's open_inodes list and the
// teacher's lookupCount destroy-on-zero pattern. A map gives O(1) lookup,
// an intentional improvement over the original's linear list scan.
type Table struct {
	mu     sync.Mutex
	c      *cache.Cache
	fm     *freemap.Map
	byMeta map[blockdev.SectorNum]*Inode
}

// NewTable creates an empty open-inode table backed by c and fm.
func NewTable(c *cache.Cache, fm *freemap.Map) *Table {
	return &Table{
		c:      c,
		fm:     fm,
		byMeta: make(map[blockdev.SectorNum]*Inode),
	}
}

// Create allocates a fresh inode sector, writes an empty on-disk inode,
// and returns it already open with a reference count of one.
func (t *Table) Create(isDir bool, parent blockdev.SectorNum) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sec, err := t.fm.Allocate(1)
	if err != nil {
		return nil, fmt.Errorf("inode: allocating inode sector: %w", err)
	}

	in := &Inode{
		c:      t.c,
		fm:     t.fm,
		sector: sec,
		isDir:  isDir,
		parent: parent,
	}
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	in.openCount = 1

	if err := t.writeBackLocked(in); err != nil {
		t.fm.Release(sec, 1)
		return nil, err
	}

	t.byMeta[sec] = in
	return in, nil
}

// Open returns the unique in-memory inode for sector, loading it from
// the cache on first open and incrementing its reference count on every
// subsequent open.
func (t *Table) Open(sector blockdev.SectorNum) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if in, ok := t.byMeta[sector]; ok {
		in.mu.Lock()
		in.openCount++
		in.mu.Unlock()
		return in, nil
	}

	p, err := t.c.Access(sector, false)
	if err != nil {
		return nil, fmt.Errorf("inode: loading sector %d: %w", sector, err)
	}
	disk, err := ondisk.DecodeInode(p.Data())
	p.Release()
	if err != nil {
		return nil, err
	}
	if disk.Magic != ondisk.Magic {
		return nil, fmt.Errorf("inode: sector %d has bad magic %#x", sector, disk.Magic)
	}

	in := &Inode{
		c:      t.c,
		fm:     t.fm,
		sector: sector,
		blocks: disk.Blocks,
		length: int64(disk.Length),
		isDir:  disk.IsDir != 0,
		parent: blockdev.SectorNum(disk.Parent),
	}
	in.readLength = in.length
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	in.openCount = 1

	t.byMeta[sector] = in
	return in, nil
}

// Remove marks in for deletion: its data and inode sectors are freed
// when the last open reference is closed.
func (t *Table) Remove(in *Inode) {
	in.mu.Lock()
	in.removed = true
	in.mu.Unlock()
}

// Close drops one reference to in. When the reference count reaches
// zero, in is either destroyed (data sectors and the inode sector freed,
// if Remove was called) or serialized back to disk, per spec.md §4.2.
func (t *Table) Close(in *Inode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	in.mu.Lock()
	in.openCount--
	destroy := in.openCount == 0
	removed := in.removed
	in.mu.Unlock()

	if !destroy {
		return nil
	}
	delete(t.byMeta, in.sector)

	if removed {
		t.freeAllSectors(in)
		return nil
	}

	if err := t.writeBackLocked(in); err != nil {
		kernlog.Errorf("inode: failed to serialize sector %d on close: %v", in.sector, err)
		return err
	}
	return nil
}

// writeBackLocked serializes in's in-memory state to its on-disk sector.
// Callers must hold t.mu.
func (t *Table) writeBackLocked(in *Inode) error {
	disk := &ondisk.Inode{
		Length:  int32(in.length),
		Magic:   ondisk.Magic,
		Blocks:  in.blocks,
		Parent:  uint32(in.parent),
	}
	if in.isDir {
		disk.IsDir = 1
	}

	p, err := t.c.Access(in.sector, true)
	if err != nil {
		return fmt.Errorf("inode: writing back sector %d: %w", in.sector, err)
	}
	sec, err := ondisk.EncodeInode(disk)
	if err != nil {
		p.Release()
		return err
	}
	*p.Data() = sec
	p.MarkDirty()
	p.Release()
	return nil
}

// freeAllSectors releases every data sector (including index blocks) and
// the inode sector itself back to the free map.
func (t *Table) freeAllSectors(in *Inode) {
	nSectors := int(ondisk.BytesToSectors(in.length))

	for idx := 0; idx < ondisk.DirectBlocks && idx < nSectors; idx++ {
		if in.blocks[idx] != 0 {
			t.fm.Release(blockdev.SectorNum(in.blocks[idx]), 1)
		}
	}

	for ib := 0; ib < ondisk.IndirectBlocks; ib++ {
		slot := ondisk.DirectBlocks + ib
		if in.blocks[slot] == 0 {
			continue
		}
		t.freeIndirectBlock(blockdev.SectorNum(in.blocks[slot]))
	}

	doubleSlot := ondisk.DirectBlocks + ondisk.IndirectBlocks
	if in.blocks[doubleSlot] != 0 {
		p, err := t.c.Access(blockdev.SectorNum(in.blocks[doubleSlot]), false)
		if err == nil {
			blk := ondisk.DecodeIndirectBlock(p.Data())
			p.Release()
			for _, ptr := range blk {
				if ptr != 0 {
					t.freeIndirectBlock(blockdev.SectorNum(ptr))
				}
			}
		}
		t.fm.Release(blockdev.SectorNum(in.blocks[doubleSlot]), 1)
	}

	t.fm.Release(in.sector, 1)
}

func (t *Table) freeIndirectBlock(blockSector blockdev.SectorNum) {
	p, err := t.c.Access(blockSector, false)
	if err == nil {
		blk := ondisk.DecodeIndirectBlock(p.Data())
		p.Release()
		for _, ptr := range blk {
			if ptr != 0 {
				t.fm.Release(blockdev.SectorNum(ptr), 1)
			}
		}
	}
	t.fm.Release(blockSector, 1)
}
