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

import (
	"fmt"
	"os"
	"sync"
)

// FileDevice is a Device backed by a regular file on the host filesystem,
// used for a persistent disk image across pintosfsd invocations.
type FileDevice struct {
	mu    sync.Mutex
	f     *os.File
	nSecs SectorNum
}

var _ Device = (*FileDevice)(nil)

// OpenFileDevice opens (creating if necessary) a disk image of the given
// sector count at path.
func OpenFileDevice(path string, sectorCount SectorNum) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("blockdev: opening device file: %w", err)
	}

	size := int64(sectorCount) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: sizing device file: %w", err)
	}

	return &FileDevice{f: f, nSecs: sectorCount}, nil
}

func (d *FileDevice) ReadSector(n SectorNum, dst *Sector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n >= d.nSecs {
		return &ErrOutOfRange{Sector: n, Count: d.nSecs}
	}
	_, err := d.f.ReadAt(dst[:], int64(n)*SectorSize)
	return err
}

func (d *FileDevice) WriteSector(n SectorNum, src *Sector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n >= d.nSecs {
		return &ErrOutOfRange{Sector: n, Count: d.nSecs}
	}
	_, err := d.f.WriteAt(src[:], int64(n)*SectorSize)
	return err
}

func (d *FileDevice) SectorCount() SectorNum {
	return d.nSecs
}

// Close closes the underlying file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
