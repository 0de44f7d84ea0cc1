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

// Package inode is the multilevel-indexed inode layer: address
// translation from byte offset to sector, sparse on-demand growth, and
// the refcounted open-inode table sitting on top of internal/cache.
package inode

import (
	"errors"
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/cache"
	"github.com/pintosfs/pintosfs/internal/freemap"
	"github.com/pintosfs/pintosfs/internal/kernpanic"
	"github.com/pintosfs/pintosfs/internal/ondisk"
)

// errNotAllocated marks an unallocated sector slot encountered while
// translating a byte offset without permission to grow the file.
var errNotAllocated = errors.New("inode: sector not allocated")

// Inode is the unique in-memory representation of one on-disk inode.
// There is at most one Inode per sector at any time — see Table.
type Inode struct {
	mu syncutil.InvariantMutex

	c  *cache.Cache
	fm *freemap.Map

	sector blockdev.SectorNum
	blocks [ondisk.InodePtrs]uint32

	length         int64
	readLength     int64
	isDir          bool
	parent         blockdev.SectorNum
	openCount      int
	removed        bool
	denyWriteCount int
}

func (i *Inode) checkInvariants() {
	kernpanic.Assert(i.openCount >= 0, "inode %d: negative open count %d", i.sector, i.openCount)
	kernpanic.Assert(i.denyWriteCount <= i.openCount, "inode %d: deny-write count %d exceeds open count %d", i.sector, i.denyWriteCount, i.openCount)
	kernpanic.Assert(i.readLength <= i.length, "inode %d: readLength %d exceeds length %d", i.sector, i.readLength, i.length)
	kernpanic.Assert(ondisk.BytesToSectors(i.length) <= ondisk.MaxFileSectors, "inode %d: length %d exceeds MaxFileSectors", i.sector, i.length)
}

// Sector returns the sector number this inode occupies.
func (i *Inode) Sector() blockdev.SectorNum { return i.sector }

// IsDir reports whether this inode is a directory.
func (i *Inode) IsDir() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.isDir
}

// Parent returns the sector of the directory that contains this inode.
func (i *Inode) Parent() blockdev.SectorNum {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.parent
}

// Length returns the current file length in bytes.
func (i *Inode) Length() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.length
}

// DenyWrite increments the deny-write count, mirroring Pintos's
// executable-in-use protection.
func (i *Inode) DenyWrite() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.denyWriteCount++
	i.checkInvariants()
}

// AllowWrite decrements the deny-write count.
func (i *Inode) AllowWrite() {
	i.mu.Lock()
	defer i.mu.Unlock()
	kernpanic.Assert(i.denyWriteCount > 0, "inode %d: AllowWrite with zero deny-write count", i.sector)
	i.denyWriteCount--
	i.checkInvariants()
}

// WriteDenied reports whether writes are currently denied.
func (i *Inode) WriteDenied() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.denyWriteCount > 0
}

// zeroSector allocates-or-reuses sec as an all-zero 512-byte sector.
func (i *Inode) zeroSector(sec blockdev.SectorNum) {
	p, err := i.c.Access(sec, true)
	if err != nil {
		kernpanic.Fatal(err, "inode: zeroing sector %d", sec)
	}
	*p.Data() = blockdev.Sector{}
	p.MarkDirty()
	p.Release()
}

// blockEntry reads offset out of the 128-pointer index block at
// blockSector, allocating and linking a fresh zero sector there first if
// it is empty and allocate is true.
func (i *Inode) blockEntry(blockSector blockdev.SectorNum, offset int, allocate bool) (blockdev.SectorNum, error) {
	p, err := i.c.Access(blockSector, false)
	if err != nil {
		return 0, err
	}
	blk := ondisk.DecodeIndirectBlock(p.Data())
	entry := blk[offset]

	if entry == 0 {
		if !allocate {
			p.Release()
			return 0, errNotAllocated
		}
		newSec, err := i.fm.Allocate(1)
		if err != nil {
			p.Release()
			return 0, err
		}
		i.zeroSector(newSec)
		blk[offset] = uint32(newSec)
		entry = uint32(newSec)

		*p.Data() = ondisk.EncodeIndirectBlock(&blk)
		p.MarkDirty()
	}
	p.Release()
	return blockdev.SectorNum(entry), nil
}

// byteToSector translates a zero-based data-sector index into a sector
// number, walking direct -> single-indirect -> double-indirect per
// ondisk's layout. When allocate is true, any unallocated slot or index
// block encountered along the way is allocated from fm and zero-filled.
func (i *Inode) byteToSector(idx int, allocate bool) (blockdev.SectorNum, error) {
	allocSlot := func(slot int) error {
		if i.blocks[slot] != 0 {
			return nil
		}
		if !allocate {
			return errNotAllocated
		}
		sec, err := i.fm.Allocate(1)
		if err != nil {
			return err
		}
		i.zeroSector(sec)
		i.blocks[slot] = uint32(sec)
		return nil
	}

	switch {
	case idx < ondisk.DirectBlocks:
		if err := allocSlot(idx); err != nil {
			return 0, err
		}
		return blockdev.SectorNum(i.blocks[idx]), nil

	case idx < ondisk.DirectBlocks+ondisk.IndirectBlocks*ondisk.IndirectPtrs:
		idx -= ondisk.DirectBlocks
		slot := ondisk.DirectBlocks + idx/ondisk.IndirectPtrs
		off := idx % ondisk.IndirectPtrs
		if err := allocSlot(slot); err != nil {
			return 0, err
		}
		return i.blockEntry(blockdev.SectorNum(i.blocks[slot]), off, allocate)

	default:
		idx -= ondisk.DirectBlocks + ondisk.IndirectBlocks*ondisk.IndirectPtrs
		if idx >= ondisk.IndirectPtrs*ondisk.IndirectPtrs {
			return 0, fmt.Errorf("inode: byte index %d exceeds MaxFileSectors", idx)
		}
		slot := ondisk.DirectBlocks + ondisk.IndirectBlocks
		if err := allocSlot(slot); err != nil {
			return 0, err
		}
		outer := idx / ondisk.IndirectPtrs
		inner := idx % ondisk.IndirectPtrs
		innerIndirect, err := i.blockEntry(blockdev.SectorNum(i.blocks[slot]), outer, allocate)
		if err != nil {
			return 0, err
		}
		return i.blockEntry(innerIndirect, inner, allocate)
	}
}

// Grow extends the file to newLength, allocating and zero-filling every
// newly needed sector. It is a no-op if newLength <= the current length.
// Allocation failures partway through are not rolled back, matching
// spec.md §7's documented (and preserved) original behavior.
func (i *Inode) Grow(newLength int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer i.checkInvariants()

	if newLength <= i.length {
		return nil
	}

	oldSectors := ondisk.BytesToSectors(i.length)
	newSectors := ondisk.BytesToSectors(newLength)

	for idx := oldSectors; idx < newSectors; idx++ {
		if _, err := i.byteToSector(int(idx), true); err != nil {
			return fmt.Errorf("inode %d: growing to sector %d: %w", i.sector, idx, err)
		}
	}

	i.length = newLength
	i.readLength = newLength
	return nil
}

// ReadAt copies min(len(buf), length-pos) bytes starting at pos into buf
// and returns the count read. Reading at or past length returns 0, nil.
func (i *Inode) ReadAt(buf []byte, pos int64) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if pos >= i.readLength {
		return 0, nil
	}
	if want := i.readLength - pos; int64(len(buf)) > want {
		buf = buf[:want]
	}

	read := 0
	for read < len(buf) {
		sectorIdx := int((pos + int64(read)) / blockdev.SectorSize)
		offsetInSector := int((pos + int64(read)) % blockdev.SectorSize)

		sec, err := i.byteToSector(sectorIdx, false)
		n := min(len(buf)-read, blockdev.SectorSize-offsetInSector)
		if err != nil {
			// An unallocated sector in a sparse region of the file
			// reads back as zeros.
			for k := 0; k < n; k++ {
				buf[read+k] = 0
			}
			read += n
			continue
		}

		p, err := i.c.Access(sec, false)
		if err != nil {
			return read, err
		}
		copy(buf[read:read+n], p.Data()[offsetInSector:offsetInSector+n])
		p.Release()
		read += n
	}

	return read, nil
}

// WriteAt writes buf at pos, growing the file first if the write extends
// past the current length, and returns the number of bytes written. If
// writes are denied (DenyWrite has outstanding holders), it returns 0
// immediately without growing or touching any sector.
func (i *Inode) WriteAt(buf []byte, pos int64) (int, error) {
	i.mu.Lock()
	if i.denyWriteCount > 0 {
		i.mu.Unlock()
		return 0, nil
	}
	i.mu.Unlock()

	needed := pos + int64(len(buf))

	i.mu.Lock()
	if needed > i.length {
		i.mu.Unlock()
		if err := i.Grow(needed); err != nil {
			return 0, err
		}
		i.mu.Lock()
	}
	defer i.mu.Unlock()

	written := 0
	for written < len(buf) {
		sectorIdx := int((pos + int64(written)) / blockdev.SectorSize)
		offsetInSector := int((pos + int64(written)) % blockdev.SectorSize)
		n := min(len(buf)-written, blockdev.SectorSize-offsetInSector)

		sec, err := i.byteToSector(sectorIdx, true)
		if err != nil {
			return written, err
		}

		p, err := i.c.Access(sec, false)
		if err != nil {
			return written, err
		}
		data := p.Data()
		copy(data[offsetInSector:offsetInSector+n], buf[written:written+n])
		p.MarkDirty()
		p.Release()

		written += n
	}

	return written, nil
}
