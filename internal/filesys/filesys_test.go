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

package filesys_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/filesys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, sectors blockdev.SectorNum) *filesys.FileSystem {
	t.Helper()
	dev := blockdev.NewMemDevice(sectors)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Done() })
	return fs
}

func TestCreateThenOpenAtRoot(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	sector, err := fs.Create(root, "hello.txt")
	require.NoError(t, err)

	got, isDir, err := fs.Open(root, "hello.txt")
	require.NoError(t, err)
	assert.False(t, isDir)
	assert.Equal(t, sector, got)
}

func TestCreateDuplicateFails(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	_, err = fs.Create(root, "a")
	require.NoError(t, err)
	_, err = fs.Create(root, "a")
	assert.Error(t, err)
}

func TestMkdirAndNestedCreate(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	_, err = fs.Mkdir(root, "sub")
	require.NoError(t, err)

	sector, err := fs.Create(root, "sub/leaf.txt")
	require.NoError(t, err)

	got, isDir, err := fs.Open(root, "sub/leaf.txt")
	require.NoError(t, err)
	assert.False(t, isDir)
	assert.Equal(t, sector, got)

	got, isDir, err = fs.Open(root, "/sub")
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.NotZero(t, got)
}

func TestDotDotResolvesToParent(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	_, err = fs.Mkdir(root, "sub")
	require.NoError(t, err)

	fileSector, err := fs.Create(root, "topfile")
	require.NoError(t, err)

	got, isDir, err := fs.Open(root, "sub/../topfile")
	require.NoError(t, err)
	assert.False(t, isDir)
	assert.Equal(t, fileSector, got)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	_, err = fs.Mkdir(root, "sub")
	require.NoError(t, err)
	_, err = fs.Create(root, "sub/leaf")
	require.NoError(t, err)

	err = fs.Remove(root, "sub")
	assert.Error(t, err)
}

func TestRemoveFileThenLookupFails(t *testing.T) {
	fs := newFS(t, 256)
	root, err := fs.Root()
	require.NoError(t, err)
	defer root.Close()

	_, err = fs.Create(root, "gone")
	require.NoError(t, err)

	require.NoError(t, fs.Remove(root, "gone"))

	sector, _, err := fs.Open(root, "gone")
	require.NoError(t, err)
	assert.Zero(t, sector)
}

func TestMountReopensExistingRoot(t *testing.T) {
	dev := blockdev.NewMemDevice(256)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)

	root, err := fs.Root()
	require.NoError(t, err)
	_, err = fs.Create(root, "persisted")
	require.NoError(t, err)
	require.NoError(t, root.Close())
	require.NoError(t, fs.Done())

	fs2, err := filesys.Mount(dev, 64)
	require.NoError(t, err)
	defer fs2.Done()

	root2, err := fs2.Root()
	require.NoError(t, err)
	defer root2.Close()

	sector, _, err := fs2.Open(root2, "persisted")
	require.NoError(t, err)
	assert.NotZero(t, sector)
}
