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

// Package ondisk defines the bit-exact on-disk layouts of the filesystem
// core: the inode, the indirect index block, and the directory entry
// record. The inode and the indirect block each marshal to exactly
// blockdev.SectorSize bytes; a directory entry is DirEntrySize bytes.
package ondisk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pintosfs/pintosfs/internal/blockdev"
)

const (
	// Magic stamps a valid on-disk inode; used to detect corruption.
	Magic uint32 = 0x494e4f44

	// DirectBlocks is the number of direct block pointers in an inode.
	DirectBlocks = 4
	// IndirectBlocks is the number of single-indirect block pointers.
	IndirectBlocks = 9
	// DoubleIndirectBlocks is the number of double-indirect block pointers.
	DoubleIndirectBlocks = 1
	// InodePtrs is the total size of the blocks array.
	InodePtrs = DirectBlocks + IndirectBlocks + DoubleIndirectBlocks
	// IndirectPtrs is how many sector numbers fit in one indirect block.
	IndirectPtrs = 128

	// MaxFileSectors is the largest number of data sectors a file can
	// address: 4 direct + 9*128 single-indirect + 128*128 double-indirect.
	MaxFileSectors = DirectBlocks + IndirectBlocks*IndirectPtrs + IndirectPtrs*IndirectPtrs
)

// Inode is the on-disk inode format, exactly one sector (512 bytes).
type Inode struct {
	Length              int32
	Magic               uint32
	Unused              [107]uint32
	DirectIndex         uint32
	IndirectIndex       uint32
	DoubleIndirectIndex uint32
	Blocks              [InodePtrs]uint32
	IsDir               uint32 // boolean, padded to a full word
	Parent              uint32
}

// IndirectBlock is 128 sector numbers, exactly one sector.
type IndirectBlock [IndirectPtrs]uint32

// EncodeInode marshals inode into a sector buffer.
func EncodeInode(inode *Inode) (blockdev.Sector, error) {
	var sec blockdev.Sector
	buf := bytes.NewBuffer(sec[:0])
	if err := binary.Write(buf, binary.LittleEndian, inode); err != nil {
		return sec, fmt.Errorf("ondisk: encoding inode: %w", err)
	}
	copy(sec[:], buf.Bytes())
	return sec, nil
}

// DecodeInode unmarshals a sector buffer into an Inode.
func DecodeInode(sec *blockdev.Sector) (*Inode, error) {
	var inode Inode
	if err := binary.Read(bytes.NewReader(sec[:]), binary.LittleEndian, &inode); err != nil {
		return nil, fmt.Errorf("ondisk: decoding inode: %w", err)
	}
	return &inode, nil
}

// EncodeIndirectBlock marshals an indirect block into a sector buffer.
func EncodeIndirectBlock(blk *IndirectBlock) blockdev.Sector {
	var sec blockdev.Sector
	for i, v := range blk {
		binary.LittleEndian.PutUint32(sec[i*4:i*4+4], v)
	}
	return sec
}

// DecodeIndirectBlock unmarshals a sector buffer into an indirect block.
func DecodeIndirectBlock(sec *blockdev.Sector) IndirectBlock {
	var blk IndirectBlock
	for i := range blk {
		blk[i] = binary.LittleEndian.Uint32(sec[i*4 : i*4+4])
	}
	return blk
}

// BytesToSectors returns the number of sectors needed to hold size bytes.
func BytesToSectors(size int64) int64 {
	return (size + blockdev.SectorSize - 1) / blockdev.SectorSize
}
