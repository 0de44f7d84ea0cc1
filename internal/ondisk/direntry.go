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

package ondisk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// MaxNameLength is the longest name a directory entry can hold.
	MaxNameLength = 14

	// DirEntrySize is the fixed on-disk size of one directory entry:
	// a NUL-terminated name buffer, a sector number, and an in-use flag.
	DirEntrySize = MaxNameLength + 2 + 4 + 4 // name+NUL+pad, sector, in-use
)

// DirEntry is one record in a directory's entry stream.
type DirEntry struct {
	Name   string
	Sector uint32
	InUse  bool
}

// dirEntryWire is the fixed-layout wire form of DirEntry.
type dirEntryWire struct {
	Name   [MaxNameLength + 2]byte
	Sector uint32
	InUse  uint32
}

// EncodeDirEntry marshals e into a fixed-size record.
func EncodeDirEntry(e DirEntry) ([]byte, error) {
	if len(e.Name) > MaxNameLength {
		return nil, fmt.Errorf("ondisk: directory entry name %q exceeds %d bytes", e.Name, MaxNameLength)
	}

	var wire dirEntryWire
	copy(wire.Name[:], e.Name)
	wire.Sector = e.Sector
	if e.InUse {
		wire.InUse = 1
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, &wire); err != nil {
		return nil, fmt.Errorf("ondisk: encoding dir entry: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDirEntry unmarshals a fixed-size record into a DirEntry.
func DecodeDirEntry(raw []byte) (DirEntry, error) {
	if len(raw) != DirEntrySize {
		return DirEntry{}, fmt.Errorf("ondisk: dir entry record has wrong size %d, want %d", len(raw), DirEntrySize)
	}

	var wire dirEntryWire
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &wire); err != nil {
		return DirEntry{}, fmt.Errorf("ondisk: decoding dir entry: %w", err)
	}

	nameLen := bytes.IndexByte(wire.Name[:], 0)
	if nameLen < 0 {
		nameLen = len(wire.Name)
	}

	return DirEntry{
		Name:   string(wire.Name[:nameLen]),
		Sector: wire.Sector,
		InUse:  wire.InUse != 0,
	}, nil
}
