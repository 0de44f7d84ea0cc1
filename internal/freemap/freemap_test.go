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

package freemap_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/freemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootSectorPreallocated(t *testing.T) {
	m := freemap.New(4)
	assert.Equal(t, 3, m.FreeCount())
}

func TestAllocateThenRelease(t *testing.T) {
	m := freemap.New(4)

	s1, err := m.Allocate(1)
	require.NoError(t, err)
	assert.NotEqual(t, blockdev.SectorNum(0), s1)

	s2, err := m.Allocate(1)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)

	m.Release(s1, 1)
	assert.Equal(t, 2, m.FreeCount())
}

func TestAllocateExhausted(t *testing.T) {
	m := freemap.New(2)
	_, err := m.Allocate(1)
	require.NoError(t, err)

	_, err = m.Allocate(1)
	assert.ErrorIs(t, err, freemap.ErrExhausted)
}

func TestAllocateContiguousRun(t *testing.T) {
	m := freemap.New(10)
	s, err := m.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, 6, m.FreeCount())
	assert.NotEqual(t, blockdev.SectorNum(0), s)
}
