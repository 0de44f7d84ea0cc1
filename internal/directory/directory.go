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

// Package directory is the hierarchical namespace layer on top of
// internal/inode: a directory is an ordinary inode whose byte stream is a
// sequence of fixed-size entry records. Grounded on the teacher's
// fs/inode/dir.go (LookUpChild/CreateChildFile/CreateChildDir/
// DeleteChildFile/DeleteChildDir naming and locking shape), adapted from
// a GCS-object-listing directory to one backed by internal/inode's byte
// stream.
package directory

import (
	"fmt"
	"strings"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/inode"
	"github.com/pintosfs/pintosfs/internal/ondisk"
)

// Entry is one resolved directory entry, returned by Readdir.
type Entry struct {
	Name   string
	Sector blockdev.SectorNum
}

// Dir is an open directory: an inode plus the entry-stream operations
// layered on top of it. "." and ".." are never stored as entries; they
// are resolved by internal/filesys, which alone knows a directory's
// parent and its own identity.
type Dir struct {
	in  *inode.Inode
	tbl *inode.Table
}

// isReservedName reports whether name is "." or "..". These are never
// valid entry names: they are resolved specially by internal/filesys
// instead of being stored.
func isReservedName(name string) bool {
	return name == "." || name == ".."
}

// Create allocates a new, empty directory inode as a child of parent.
func Create(tbl *inode.Table, parent blockdev.SectorNum) (*Dir, error) {
	in, err := tbl.Create(true, parent)
	if err != nil {
		return nil, err
	}
	return &Dir{in: in, tbl: tbl}, nil
}

// Open returns the directory inode at sector, which must already be a
// directory.
func Open(tbl *inode.Table, sector blockdev.SectorNum) (*Dir, error) {
	in, err := tbl.Open(sector)
	if err != nil {
		return nil, err
	}
	if !in.IsDir() {
		tbl.Close(in)
		return nil, fmt.Errorf("directory: sector %d is not a directory", sector)
	}
	return &Dir{in: in, tbl: tbl}, nil
}

// Close releases the directory's inode reference.
func (d *Dir) Close() error {
	return d.tbl.Close(d.in)
}

// Sector returns the sector of the directory's own inode.
func (d *Dir) Sector() blockdev.SectorNum { return d.in.Sector() }

// Inode returns the directory's underlying inode, for callers (such as
// internal/filesys) that need file-level operations alongside directory
// ones.
func (d *Dir) Inode() *inode.Inode { return d.in }

// forEachEntry scans every entry record, invoking f with the record's
// zero-based index and contents. If f returns false, the scan stops
// early. It returns only a read or decode error; callers that need an
// append position use the directory inode's Length.
func (d *Dir) forEachEntry(f func(idx int, e ondisk.DirEntry) bool) error {
	length := d.in.Length()
	count := int(length / ondisk.DirEntrySize)

	buf := make([]byte, ondisk.DirEntrySize)
	for i := 0; i < count; i++ {
		n, err := d.in.ReadAt(buf, int64(i)*ondisk.DirEntrySize)
		if err != nil {
			return err
		}
		if n != ondisk.DirEntrySize {
			return fmt.Errorf("directory: short read of entry %d in sector %d", i, d.in.Sector())
		}
		e, err := ondisk.DecodeDirEntry(buf)
		if err != nil {
			return err
		}
		if !f(i, e) {
			return nil
		}
	}
	return nil
}

// Lookup returns the sector of name's inode if name is a live entry.
func (d *Dir) Lookup(name string) (blockdev.SectorNum, bool, error) {
	if isReservedName(name) {
		return 0, false, fmt.Errorf("directory: %q is not a storable entry name", name)
	}

	var found blockdev.SectorNum
	var ok bool
	err := d.forEachEntry(func(_ int, e ondisk.DirEntry) bool {
		if e.InUse && e.Name == name {
			found, ok = e.Sector, true
			return false
		}
		return true
	})
	return found, ok, err
}

// Add inserts a new entry mapping name to childSector, reusing a
// tombstoned slot if one exists and otherwise extending the directory.
// Returns false if name already exists or is reserved.
func (d *Dir) Add(name string, childSector blockdev.SectorNum) (bool, error) {
	if isReservedName(name) {
		return false, nil
	}
	if len(name) > ondisk.MaxNameLength {
		return false, fmt.Errorf("directory: name %q exceeds %d bytes", name, ondisk.MaxNameLength)
	}

	freeIdx := -1
	exists := false
	err := d.forEachEntry(func(idx int, e ondisk.DirEntry) bool {
		if e.InUse && e.Name == name {
			exists = true
			return false
		}
		if !e.InUse && freeIdx == -1 {
			freeIdx = idx
		}
		return true
	})
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	raw, err := ondisk.EncodeDirEntry(ondisk.DirEntry{Name: name, Sector: uint32(childSector), InUse: true})
	if err != nil {
		return false, err
	}

	offset := int64(freeIdx) * ondisk.DirEntrySize
	if freeIdx == -1 {
		offset = d.in.Length()
	}
	if _, err := d.in.WriteAt(raw, offset); err != nil {
		return false, err
	}
	return true, nil
}

// Remove tombstones name's entry (InUse = false), leaving the slot for
// reuse by a later Add. Returns false if name does not exist.
func (d *Dir) Remove(name string) (bool, error) {
	if isReservedName(name) {
		return false, nil
	}

	var idx = -1
	var entry ondisk.DirEntry
	err := d.forEachEntry(func(i int, e ondisk.DirEntry) bool {
		if e.InUse && e.Name == name {
			idx, entry = i, e
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	if idx == -1 {
		return false, nil
	}

	entry.InUse = false
	raw, err := ondisk.EncodeDirEntry(entry)
	if err != nil {
		return false, err
	}
	if _, err := d.in.WriteAt(raw, int64(idx)*ondisk.DirEntrySize); err != nil {
		return false, err
	}
	return true, nil
}

// Readdir returns every live entry, in on-disk order.
func (d *Dir) Readdir() ([]Entry, error) {
	var entries []Entry
	err := d.forEachEntry(func(_ int, e ondisk.DirEntry) bool {
		if e.InUse {
			entries = append(entries, Entry{Name: e.Name, Sector: blockdev.SectorNum(e.Sector)})
		}
		return true
	})
	return entries, err
}

// IsEmpty reports whether the directory holds no live entries, used to
// guard directory removal.
func (d *Dir) IsEmpty() (bool, error) {
	entries, err := d.Readdir()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Resolve walks a '/'-separated path starting from d, opening and
// closing intermediate directories as it goes, and returns the sector of
// the final component along with whether it is itself a directory. It
// does not resolve the reserved names "." and ".."; internal/filesys
// handles those before calling in.
func Resolve(tbl *inode.Table, start *Dir, path string) (blockdev.SectorNum, bool, error) {
	cur := start
	opened := false
	defer func() {
		if opened {
			cur.Close()
		}
	}()

	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		sector, ok, err := cur.Lookup(part)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}

		last := i == len(parts)-1
		childIn, err := tbl.Open(sector)
		if err != nil {
			return 0, false, err
		}
		isDir := childIn.IsDir()

		if last {
			tbl.Close(childIn)
			return sector, isDir, nil
		}
		if !isDir {
			tbl.Close(childIn)
			return 0, false, fmt.Errorf("directory: %q is not a directory", part)
		}

		if opened {
			cur.Close()
		}
		cur = &Dir{in: childIn, tbl: tbl}
		opened = true
	}

	return cur.Sector(), true, nil
}
