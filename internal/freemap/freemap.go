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

// Package freemap is the free-sector bitmap. The filesystem core treats
// it as an external collaborator with a narrow contract (Allocate,
// Release) — out of scope as a subsystem in its own right, but a
// concrete implementation is needed to exercise internal/inode and
// internal/directory end to end.
package freemap

import (
	"fmt"
	"sync"

	"github.com/pintosfs/pintosfs/internal/blockdev"
)

// ErrExhausted is returned when an allocation cannot be satisfied from
// the remaining free sectors.
var ErrExhausted = fmt.Errorf("freemap: no contiguous free sectors available")

// Map is a mutex-protected bitmap of sector liveness. Sector 0 is
// reserved for the boot block and is never allocated or released.
type Map struct {
	mu   sync.Mutex
	used []bool
}

// New creates a Map over a device with the given total sector count,
// with sector 0 pre-marked used for the boot block.
func New(totalSectors blockdev.SectorNum) *Map {
	m := &Map{used: make([]bool, totalSectors)}
	if len(m.used) > 0 {
		m.used[0] = true
	}
	return m
}

// Allocate reserves n contiguous free sectors and returns the sector
// number of the first one. Pintos's free-map allocates single sectors
// one at a time via inode_grow's cursor advancement, so n is almost
// always 1 in practice, but the contract supports runs.
func (m *Map) Allocate(n int) (blockdev.SectorNum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := 0
	for i := 0; i < len(m.used); i++ {
		if m.used[i] {
			run = 0
			continue
		}
		run++
		if run == n {
			start := i - n + 1
			for j := start; j <= i; j++ {
				m.used[j] = true
			}
			return blockdev.SectorNum(start), nil
		}
	}
	return 0, ErrExhausted
}

// Release frees n sectors starting at sector.
func (m *Map) Release(sector blockdev.SectorNum, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := int(sector); i < int(sector)+n && i < len(m.used); i++ {
		m.used[i] = false
	}
}

// FreeCount returns the number of currently unused sectors, for tests
// and diagnostics.
func (m *Map) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	free := 0
	for _, u := range m.used {
		if !u {
			free++
		}
	}
	return free
}
