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

// Package filesys is the top-level filesystem façade: path resolution
// relative to a working directory, "." and ".." handling, and the
// coarse filesystem-wide lock serializing directory-plus-allocate
// sequences. Grounded on fs/fs.go's FileSystem (the struct that owns a
// mutex and dispatches to fs/inode for every public operation), adapted
// from a GCS-backed façade to one sitting on internal/directory.
package filesys

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/cache"
	"github.com/pintosfs/pintosfs/internal/directory"
	"github.com/pintosfs/pintosfs/internal/freemap"
	"github.com/pintosfs/pintosfs/internal/inode"
	"github.com/pintosfs/pintosfs/internal/kernlog"
	"github.com/pintosfs/pintosfs/internal/kernmetrics"
)

// RootSector is the fixed sector of the filesystem's root directory,
// carved out by Format before any other allocation happens.
const RootSector blockdev.SectorNum = 1

// FileSystem is the process-wide singleton coordinating the cache,
// free map, and inode table behind a single coarse mutex. One
// FileSystem is constructed at boot and shared by every process's
// working directory.
type FileSystem struct {
	mu sync.Mutex

	cache *cache.Cache
	fm    *freemap.Map
	tbl   *inode.Table
	root  *directory.Dir
}

// Format initializes a fresh filesystem on dev: a free map sized to the
// device, an inode table, and a freshly created empty root directory at
// RootSector.
func Format(dev blockdev.Device, cacheEntries int) (*FileSystem, error) {
	c := cache.New(dev, cacheEntries)
	fm := freemap.New(dev.SectorCount())
	tbl := inode.NewTable(c, fm)

	root, err := directory.Create(tbl, RootSector)
	if err != nil {
		return nil, fmt.Errorf("filesys: formatting root directory: %w", err)
	}
	if root.Sector() != RootSector {
		return nil, fmt.Errorf("filesys: root directory landed on sector %d, want %d (free map must reserve it first)", root.Sector(), RootSector)
	}

	kernlog.Infof("filesys: formatted device with %d sectors, root at sector %d", dev.SectorCount(), root.Sector())
	return &FileSystem{cache: c, fm: fm, tbl: tbl, root: root}, nil
}

// Mount opens an existing filesystem on dev without reformatting it.
func Mount(dev blockdev.Device, cacheEntries int) (*FileSystem, error) {
	c := cache.New(dev, cacheEntries)
	fm := freemap.New(dev.SectorCount())
	tbl := inode.NewTable(c, fm)

	root, err := directory.Open(tbl, RootSector)
	if err != nil {
		return nil, fmt.Errorf("filesys: mounting root directory: %w", err)
	}
	return &FileSystem{cache: c, fm: fm, tbl: tbl, root: root}, nil
}

// Root returns the filesystem's root directory, opening a fresh handle
// the caller owns and must Close.
func (fs *FileSystem) Root() (*directory.Dir, error) {
	return directory.Open(fs.tbl, RootSector)
}

// OpenInode opens the inode at sector directly, for callers (Process)
// that have already resolved a path to a sector and know it names a
// regular file.
func (fs *FileSystem) OpenInode(sector blockdev.SectorNum) (*inode.Inode, error) {
	return fs.tbl.Open(sector)
}

// OpenDir opens the directory at sector directly, mirroring OpenInode
// for callers that know the sector names a directory.
func (fs *FileSystem) OpenDir(sector blockdev.SectorNum) (*directory.Dir, error) {
	return directory.Open(fs.tbl, sector)
}

// CloseInode releases an inode opened via OpenInode or fs.tbl.Create.
func (fs *FileSystem) CloseInode(in *inode.Inode) error {
	return fs.tbl.Close(in)
}

// SetMetrics attaches m as the destination for this filesystem's buffer
// cache counters.
func (fs *FileSystem) SetMetrics(m *kernmetrics.Metrics) {
	fs.cache.SetMetrics(m)
}

// Done flushes every dirty cache entry back to the device and releases
// the root directory handle, called once at shutdown.
func (fs *FileSystem) Done() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.root.Close(); err != nil {
		kernlog.Errorf("filesys: closing root on shutdown: %v", err)
	}
	if err := fs.cache.FlushAll(true); err != nil {
		return fmt.Errorf("filesys: flushing cache on shutdown: %w", err)
	}
	kernlog.Infof("filesys: shutdown complete")
	return nil
}

// resolveParent splits path into its directory component and final name,
// resolving "." and ".." along the way against cwd (the caller's
// working directory, never mutated) without ever treating them as
// stored directory entries — only filesys itself understands them.
func (fs *FileSystem) resolveParent(cwd *directory.Dir, path string) (*directory.Dir, string, bool, error) {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil, "", false, fmt.Errorf("filesys: empty path")
	}

	start := cwd
	if strings.HasPrefix(path, "/") {
		r, err := fs.Root()
		if err != nil {
			return nil, "", false, err
		}
		start = r
		path = strings.TrimPrefix(path, "/")
	}

	idx := strings.LastIndex(path, "/")
	dirPart, name := path[:max(idx, 0)], path[idx+1:]
	if idx < 0 {
		dirPart = ""
	}
	if name == "" {
		return nil, "", false, fmt.Errorf("filesys: path %q has no final component", path)
	}

	parent, ownsParent, err := fs.resolveDirPath(start, dirPart)
	if start != cwd && parent != start {
		start.Close()
	}
	if err != nil {
		return nil, "", false, err
	}
	return parent, name, ownsParent || start != cwd, nil
}

// resolveDirPath walks dirPart from start, honoring "." (no-op) and
// ".." (this directory's parent, which filesys resolves via the
// directory's own Inode().Parent(), not a stored entry). Returns the
// resulting directory and whether the caller now owns a handle it must
// Close (false when it is simply `start` unchanged).
func (fs *FileSystem) resolveDirPath(start *directory.Dir, dirPart string) (*directory.Dir, bool, error) {
	if dirPart == "" {
		return start, false, nil
	}

	cur := start
	owns := false
	for _, part := range strings.Split(dirPart, "/") {
		if part == "" || part == "." {
			continue
		}
		var next *directory.Dir
		var err error
		if part == ".." {
			next, err = directory.Open(fs.tbl, cur.Inode().Parent())
		} else {
			sector, found, lookErr := cur.Lookup(part)
			if lookErr != nil {
				err = lookErr
			} else if !found {
				err = fmt.Errorf("filesys: %q: no such directory", part)
			} else {
				next, err = directory.Open(fs.tbl, sector)
				if err == nil && !next.Inode().IsDir() {
					next.Close()
					err = fmt.Errorf("filesys: %q is not a directory", part)
				}
			}
		}
		if err != nil {
			if owns {
				cur.Close()
			}
			return nil, false, err
		}
		if owns {
			cur.Close()
		}
		cur, owns = next, true
	}
	return cur, owns, nil
}

// Create makes a new, empty regular file named by path (resolved
// relative to cwd) and returns its inode sector.
func (fs *FileSystem) Create(cwd *directory.Dir, path string) (blockdev.SectorNum, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, ownsParent, err := fs.resolveParent(cwd, path)
	if err != nil {
		return 0, err
	}
	if ownsParent {
		defer parent.Close()
	}

	if _, found, err := parent.Lookup(name); err != nil {
		return 0, err
	} else if found {
		return 0, fmt.Errorf("filesys: %q already exists", name)
	}

	in, err := fs.tbl.Create(false, parent.Sector())
	if err != nil {
		return 0, err
	}
	sector := in.Sector()
	if err := fs.tbl.Close(in); err != nil {
		return 0, err
	}

	ok, err := parent.Add(name, sector)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("filesys: %q already exists", name)
	}
	return sector, nil
}

// Mkdir makes a new, empty directory named by path.
func (fs *FileSystem) Mkdir(cwd *directory.Dir, path string) (blockdev.SectorNum, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, ownsParent, err := fs.resolveParent(cwd, path)
	if err != nil {
		return 0, err
	}
	if ownsParent {
		defer parent.Close()
	}

	if _, found, err := parent.Lookup(name); err != nil {
		return 0, err
	} else if found {
		return 0, fmt.Errorf("filesys: %q already exists", name)
	}

	child, err := directory.Create(fs.tbl, parent.Sector())
	if err != nil {
		return 0, err
	}
	sector := child.Sector()
	if err := child.Close(); err != nil {
		return 0, err
	}

	ok, err := parent.Add(name, sector)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("filesys: %q already exists", name)
	}
	return sector, nil
}

// Open resolves path to its inode sector without creating anything. The
// bool result is isDir, not found; a path that resolves to nothing
// comes back as sector 0 (never a valid inode sector — the free map
// keeps sector 0 for the boot block) with a nil error. Unlike resolveParent,
// which only needs to split off a final name for Create/Mkdir/Remove,
// Open must itself resolve "." and ".." anywhere in path, including as
// the final component, since filesys.Process.Open("."/"..") and
// Chdir("."/"..") are ordinary, common calls.
func (fs *FileSystem) Open(cwd *directory.Dir, path string) (blockdev.SectorNum, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.resolvePath(cwd, path)
}

// resolvePath walks path component by component from cwd (or from root,
// for a leading "/"), honoring "." and ".." exactly like
// resolveDirPath, except the final component may itself be "."/".." and
// may name a file rather than a directory. Callers must hold fs.mu.
func (fs *FileSystem) resolvePath(cwd *directory.Dir, path string) (blockdev.SectorNum, bool, error) {
	path = strings.TrimSuffix(path, "/")
	cur := cwd
	owns := false
	if strings.HasPrefix(path, "/") {
		r, err := fs.Root()
		if err != nil {
			return 0, false, err
		}
		cur, owns = r, true
		path = strings.TrimPrefix(path, "/")
	}
	defer func() {
		if owns {
			cur.Close()
		}
	}()

	if path == "" {
		return cur.Sector(), true, nil
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		last := i == len(parts)-1
		if part == "" || part == "." {
			if last {
				return cur.Sector(), true, nil
			}
			continue
		}

		var sector blockdev.SectorNum
		if part == ".." {
			sector = cur.Inode().Parent()
		} else {
			s, found, err := cur.Lookup(part)
			if err != nil {
				return 0, false, err
			}
			if !found {
				return 0, false, nil
			}
			sector = s
		}

		if last {
			in, err := fs.tbl.Open(sector)
			if err != nil {
				return 0, false, err
			}
			isDir := in.IsDir()
			if err := fs.tbl.Close(in); err != nil {
				return 0, false, err
			}
			return sector, isDir, nil
		}

		next, err := directory.Open(fs.tbl, sector)
		if err != nil {
			return 0, false, err
		}
		if owns {
			cur.Close()
		}
		cur, owns = next, true
	}
	return cur.Sector(), true, nil
}

// Remove unlinks the file or empty directory named by path.
func (fs *FileSystem) Remove(cwd *directory.Dir, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, ownsParent, err := fs.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if ownsParent {
		defer parent.Close()
	}

	sector, found, err := parent.Lookup(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("filesys: %q: no such file or directory", name)
	}

	in, err := fs.tbl.Open(sector)
	if err != nil {
		return err
	}
	if in.IsDir() {
		child, err := directory.Open(fs.tbl, sector)
		if err != nil {
			fs.tbl.Close(in)
			return err
		}
		empty, err := child.IsEmpty()
		child.Close()
		if err != nil {
			fs.tbl.Close(in)
			return err
		}
		if !empty {
			fs.tbl.Close(in)
			return fmt.Errorf("filesys: %q: directory not empty", name)
		}
	}

	if _, err := parent.Remove(name); err != nil {
		fs.tbl.Close(in)
		return err
	}
	fs.tbl.Remove(in)
	return fs.tbl.Close(in)
}
