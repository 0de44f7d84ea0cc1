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

// Package blockdev models the bottom-half block device driver that the
// filesystem core treats as an external collaborator: synchronous,
// sector-granularity reads and writes. It is out of scope for the kernel
// core proper (see spec §1) but a concrete implementation is needed to
// exercise the cache and inode layers end to end.
package blockdev

import "fmt"

// SectorSize is the fixed size, in bytes, of every sector on the device.
const SectorSize = 512

// SectorNum addresses a single sector on the device.
type SectorNum uint32

// Sector is the raw contents of one sector.
type Sector [SectorSize]byte

// Device is the contract the filesystem core requires of the bottom-half
// driver: synchronous sector_read/sector_write of fixed-size sectors.
// Implementations are assumed infallible at this abstraction level per
// spec §4.1/§7 — callers that do receive an error must treat it as fatal.
type Device interface {
	// ReadSector reads sector n into dst.
	ReadSector(n SectorNum, dst *Sector) error

	// WriteSector writes the contents of src to sector n.
	WriteSector(n SectorNum, src *Sector) error

	// SectorCount returns the total number of addressable sectors.
	SectorCount() SectorNum
}

// ErrOutOfRange is returned when a sector number falls outside the
// device's addressable range.
type ErrOutOfRange struct {
	Sector SectorNum
	Count  SectorNum
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("blockdev: sector %d out of range (device has %d sectors)", e.Sector, e.Count)
}
