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

package filesys

import (
	"fmt"
	"io"
	"os"

	"github.com/pintosfs/pintosfs/internal/directory"
	"github.com/pintosfs/pintosfs/internal/fh"
	"github.com/pintosfs/pintosfs/internal/sched"
)

// Process realizes spec.md §6's syscall surface as Go methods on a
// per-thread handle table: halt/exit/exec/wait/create/remove/open/
// filesize/read/write/seek/tell/close/chdir/mkdir/readdir/isdir/
// inumber. It is not a real syscall trap — callers are ordinary Go code
// running as the body of an internal/sched.Thread — but it carries the
// same fd-0/fd-1 and working-directory semantics a real one would.
//
// Grounded on the teacher's per-request handle lifecycle (fs/file.go,
// fs/dir_handle.go), widened from one FUSE request to one process's
// entire lifetime.
type Process struct {
	fs     *FileSystem
	sched  *sched.Scheduler
	thread *sched.Thread
	files  *fh.Table
	cwd    *directory.Dir
}

// NewProcess opens a process-scoped handle table rooted at fs's root
// directory, for the given thread. Callers normally do this from inside
// the entry func passed to sched.Create.
func NewProcess(fs *FileSystem, s *sched.Scheduler, t *sched.Thread) (*Process, error) {
	cwd, err := fs.Root()
	if err != nil {
		return nil, err
	}
	return &Process{fs: fs, sched: s, thread: t, files: fh.NewTable(), cwd: cwd}, nil
}

// dead reports whether p has already asked its thread to exit, after
// which every further syscall fails rather than touching freed state.
func (p *Process) dead() bool {
	return p.thread == nil
}

// IsExited reports whether Exit has already been called on p, for
// callers (such as Exec's wrapper) deciding whether an implicit exit is
// still needed.
func (p *Process) IsExited() bool {
	return p.dead()
}

// killForBadFD exits the process with code -1, the consequence spec.md
// §6 attaches to writing to fd 0 or reading from fd 1.
func (p *Process) killForBadFD() error {
	err := fmt.Errorf("filesys: invalid access on a reserved file descriptor")
	p.Exit(-1)
	return err
}

// Halt shuts the whole kernel down: every dirty cache entry is flushed
// and the root directory handle closed; the backing device itself is
// left open. Grounded on syscall.c's halt(),
// which in Pintos never returns because it powers the machine off;
// here it returns control to cmd/pintosfsd's boot loop instead.
func (p *Process) Halt() error {
	return p.fs.Done()
}

// Exit terminates the process with code, closing every open file
// descriptor and notifying the scheduler so Wait can observe it.
func (p *Process) Exit(code int) {
	if p.dead() {
		return
	}
	for _, h := range p.files.CloseAll() {
		if h.IsDir() {
			h.Dir.Close()
		} else {
			p.fs.CloseInode(h.File)
		}
	}
	p.cwd.Close()
	t := p.thread
	p.thread = nil
	p.sched.Exit(t, code)
}

// Exec starts body as a new thread (the "child process"), waits for it
// to report whether it launched successfully, and returns its tid. This
// mirrors sched.Exec's contract stub: there is no separate executable
// to load, only a Go closure standing in for one.
func (p *Process) Exec(name string, body func(child *Process) bool) (int32, bool) {
	return p.sched.Exec(p.thread, name, func(t *sched.Thread) bool {
		child, err := NewProcess(p.fs, p.sched, t)
		if err != nil {
			return false
		}
		ok := body(child)
		if !child.dead() {
			child.Exit(0)
		}
		return ok
	})
}

// Wait blocks until the child with the given tid exits, per sched.Wait.
func (p *Process) Wait(childTid int32) (int, bool) {
	return p.sched.Wait(p.thread, childTid)
}

// Create makes a new, empty file named by path and grows it to
// initialSize bytes.
func (p *Process) Create(path string, initialSize int64) (bool, error) {
	sector, err := p.fs.Create(p.cwd, path)
	if err != nil {
		return false, err
	}
	if initialSize <= 0 {
		return true, nil
	}
	in, err := p.fs.OpenInode(sector)
	if err != nil {
		return false, err
	}
	defer p.fs.CloseInode(in)
	if err := in.Grow(initialSize); err != nil {
		return false, err
	}
	return true, nil
}

// Remove unlinks the file or empty directory named by path.
func (p *Process) Remove(path string) (bool, error) {
	if err := p.fs.Remove(p.cwd, path); err != nil {
		return false, err
	}
	return true, nil
}

// Open resolves path to an inode or directory and assigns it a file
// descriptor above the reserved stdin/stdout fds. fs.Open's bool result
// is isDir, not found; a path that resolves to nothing comes back as
// sector 0 (never a valid inode sector — the free map keeps sector 0
// for the boot block) with a nil error.
func (p *Process) Open(path string) (int, error) {
	sector, isDir, err := p.fs.Open(p.cwd, path)
	if err != nil {
		return -1, err
	}
	if sector == 0 {
		return -1, fmt.Errorf("filesys: %q: no such file or directory", path)
	}

	var h *fh.Handle
	if isDir {
		d, err := p.fs.OpenDir(sector)
		if err != nil {
			return -1, err
		}
		h = fh.NewDirHandle(d)
	} else {
		in, err := p.fs.OpenInode(sector)
		if err != nil {
			return -1, err
		}
		h = fh.NewFileHandle(in)
	}
	return p.files.Open(h), nil
}

// Filesize returns the byte length of the file open on fd.
func (p *Process) Filesize(fd int) (int64, error) {
	h, err := p.fileHandle(fd)
	if err != nil {
		return 0, err
	}
	return h.File.Length(), nil
}

// Read fills buf from fd at its current position, advancing it.
// Reading from fd 1 (stdout) is invalid and kills the process.
func (p *Process) Read(fd int, buf []byte) (int, error) {
	if fd == fh.StdoutFd {
		return 0, p.killForBadFD()
	}
	if fd == fh.StdinFd {
		n, err := os.Stdin.Read(buf)
		if err == io.EOF {
			return n, nil
		}
		return n, err
	}
	h, err := p.fileHandle(fd)
	if err != nil {
		return 0, err
	}
	n, err := h.File.ReadAt(buf, h.Position)
	h.Position += int64(n)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

// Write writes buf to fd at its current position, advancing it.
// Writing to fd 0 (stdin) is invalid and kills the process.
func (p *Process) Write(fd int, buf []byte) (int, error) {
	if fd == fh.StdinFd {
		return 0, p.killForBadFD()
	}
	if fd == fh.StdoutFd {
		return os.Stdout.Write(buf)
	}
	h, err := p.fileHandle(fd)
	if err != nil {
		return 0, err
	}
	n, err := h.File.WriteAt(buf, h.Position)
	h.Position += int64(n)
	return n, err
}

// Seek repositions fd's cursor to pos bytes from the start of the file.
func (p *Process) Seek(fd int, pos int64) error {
	h, err := p.fileHandle(fd)
	if err != nil {
		return err
	}
	h.Position = pos
	return nil
}

// Tell returns fd's current byte position.
func (p *Process) Tell(fd int) (int64, error) {
	h, err := p.fileHandle(fd)
	if err != nil {
		return 0, err
	}
	return h.Position, nil
}

// Close releases fd, closing the underlying inode or directory.
func (p *Process) Close(fd int) error {
	h, ok := p.files.Close(fd)
	if !ok {
		return fmt.Errorf("filesys: fd %d is not open", fd)
	}
	if h.IsDir() {
		return h.Dir.Close()
	}
	return p.fs.CloseInode(h.File)
}

// Chdir changes the process's working directory to path.
func (p *Process) Chdir(path string) error {
	sector, isDir, err := p.fs.Open(p.cwd, path)
	if err != nil {
		return err
	}
	if sector == 0 {
		return fmt.Errorf("filesys: %q: no such directory", path)
	}
	if !isDir {
		return fmt.Errorf("filesys: %q is not a directory", path)
	}
	next, err := p.fs.OpenDir(sector)
	if err != nil {
		return err
	}
	p.cwd.Close()
	p.cwd = next
	return nil
}

// Mkdir makes a new, empty directory named by path.
func (p *Process) Mkdir(path string) (bool, error) {
	if _, err := p.fs.Mkdir(p.cwd, path); err != nil {
		return false, err
	}
	return true, nil
}

// Readdir returns the next entry name from the directory open on fd, in
// listing order, or ok=false once every entry has been returned.
func (p *Process) Readdir(fd int) (string, bool, error) {
	h, ok := p.files.Get(fd)
	if !ok {
		return "", false, fmt.Errorf("filesys: fd %d is not open", fd)
	}
	e, ok, err := h.NextDirEntry()
	if err != nil || !ok {
		return "", false, err
	}
	return e.Name, true, nil
}

// Isdir reports whether fd names a directory.
func (p *Process) Isdir(fd int) (bool, error) {
	h, ok := p.files.Get(fd)
	if !ok {
		return false, fmt.Errorf("filesys: fd %d is not open", fd)
	}
	return h.IsDir(), nil
}

// Inumber returns the inode sector backing fd, standing in for an inode
// number.
func (p *Process) Inumber(fd int) (int64, error) {
	h, ok := p.files.Get(fd)
	if !ok {
		return 0, fmt.Errorf("filesys: fd %d is not open", fd)
	}
	if h.IsDir() {
		return int64(h.Dir.Sector()), nil
	}
	return int64(h.File.Sector()), nil
}

func (p *Process) fileHandle(fd int) (*fh.Handle, error) {
	h, ok := p.files.Get(fd)
	if !ok {
		return nil, fmt.Errorf("filesys: fd %d is not open", fd)
	}
	if h.IsDir() {
		return nil, fmt.Errorf("filesys: fd %d is a directory", fd)
	}
	return h, nil
}
