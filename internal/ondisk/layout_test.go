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

package ondisk_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/ondisk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInodeRoundTrip(t *testing.T) {
	in := &ondisk.Inode{
		Length:              12345,
		Magic:               ondisk.Magic,
		DirectIndex:         2,
		IndirectIndex:       3,
		DoubleIndirectIndex: 0,
		IsDir:               1,
		Parent:              7,
	}
	in.Blocks[0] = 100
	in.Blocks[13] = 900

	sec, err := ondisk.EncodeInode(in)
	require.NoError(t, err)

	got, err := ondisk.DecodeInode(&sec)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestIndirectBlockRoundTrip(t *testing.T) {
	var blk ondisk.IndirectBlock
	blk[0] = 42
	blk[127] = 999

	sec := ondisk.EncodeIndirectBlock(&blk)
	got := ondisk.DecodeIndirectBlock(&sec)
	assert.Equal(t, blk, got)
}

func TestInodeExactlyOneSector(t *testing.T) {
	sec, err := ondisk.EncodeInode(&ondisk.Inode{Magic: ondisk.Magic})
	require.NoError(t, err)
	assert.Len(t, sec, blockdev.SectorSize)
}

func TestMaxFileSectorsBound(t *testing.T) {
	assert.Equal(t, 4+9*128+128*128, ondisk.MaxFileSectors)
}

func TestDirEntryRoundTrip(t *testing.T) {
	e := ondisk.DirEntry{Name: "report.txt", Sector: 55, InUse: true}

	raw, err := ondisk.EncodeDirEntry(e)
	require.NoError(t, err)
	assert.Len(t, raw, ondisk.DirEntrySize)

	got, err := ondisk.DecodeDirEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDirEntryNameTooLong(t *testing.T) {
	_, err := ondisk.EncodeDirEntry(ondisk.DirEntry{Name: "this-name-is-way-too-long-for-a-directory-entry"})
	assert.Error(t, err)
}

func TestBytesToSectors(t *testing.T) {
	assert.Equal(t, int64(0), ondisk.BytesToSectors(0))
	assert.Equal(t, int64(1), ondisk.BytesToSectors(1))
	assert.Equal(t, int64(1), ondisk.BytesToSectors(512))
	assert.Equal(t, int64(2), ondisk.BytesToSectors(513))
}
