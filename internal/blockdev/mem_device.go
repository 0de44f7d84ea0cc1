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

package blockdev

import "sync"

// MemDevice is an in-memory Device backed by a slice of sectors, used by
// tests and by the format-then-run-in-process mode of pintosfsd.
type MemDevice struct {
	mu      sync.Mutex
	sectors []Sector
}

var _ Device = (*MemDevice)(nil)

// NewMemDevice creates an in-memory device with count zero-filled sectors.
func NewMemDevice(count SectorNum) *MemDevice {
	return &MemDevice{sectors: make([]Sector, count)}
}

func (d *MemDevice) ReadSector(n SectorNum, dst *Sector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n >= SectorNum(len(d.sectors)) {
		return &ErrOutOfRange{Sector: n, Count: SectorNum(len(d.sectors))}
	}
	*dst = d.sectors[n]
	return nil
}

func (d *MemDevice) WriteSector(n SectorNum, src *Sector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n >= SectorNum(len(d.sectors)) {
		return &ErrOutOfRange{Sector: n, Count: SectorNum(len(d.sectors))}
	}
	d.sectors[n] = *src
	return nil
}

func (d *MemDevice) SectorCount() SectorNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	return SectorNum(len(d.sectors))
}
