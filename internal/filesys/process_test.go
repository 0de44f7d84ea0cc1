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
	"sync"
	"testing"

	"github.com/pintosfs/pintosfs/internal/blockdev"
	"github.com/pintosfs/pintosfs/internal/filesys"
	"github.com/pintosfs/pintosfs/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runProcess creates a thread running body as a filesys.Process and
// blocks until it returns, since sched.Create dispatches the thread's
// goroutine immediately rather than handing back a join point.
func runProcess(t *testing.T, s *sched.Scheduler, fs *filesys.FileSystem, body func(p *filesys.Process)) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	s.Create(nil, "proc", sched.PriDefault, func(tt *sched.Thread) {
		defer wg.Done()
		p, err := filesys.NewProcess(fs, s, tt)
		require.NoError(t, err)
		body(p)
		if !p.IsExited() {
			p.Exit(0)
		}
	})
	wg.Wait()
}

func TestProcessCreateWriteReadRoundTrips(t *testing.T) {
	dev := blockdev.NewMemDevice(256)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Done() })

	s := sched.New(sched.ModePriority)
	runProcess(t, s, fs, func(p *filesys.Process) {
		ok, err := p.Create("greeting.txt", 0)
		require.NoError(t, err)
		require.True(t, ok)

		fd, err := p.Open("greeting.txt")
		require.NoError(t, err)

		n, err := p.Write(fd, []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		require.NoError(t, p.Seek(fd, 0))
		buf := make([]byte, 5)
		n, err = p.Read(fd, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))

		require.NoError(t, p.Close(fd))
	})
}

func TestProcessMkdirChdirAndReaddir(t *testing.T) {
	dev := blockdev.NewMemDevice(256)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Done() })

	s := sched.New(sched.ModePriority)
	runProcess(t, s, fs, func(p *filesys.Process) {
		ok, err := p.Mkdir("sub")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, p.Chdir("sub"))
		ok, err = p.Create("a.txt", 0)
		require.NoError(t, err)
		require.True(t, ok)

		fd, err := p.Open(".")
		require.NoError(t, err)
		isDir, err := p.Isdir(fd)
		require.NoError(t, err)
		assert.True(t, isDir)

		var names []string
		for {
			name, ok, err := p.Readdir(fd)
			require.NoError(t, err)
			if !ok {
				break
			}
			names = append(names, name)
		}
		assert.Contains(t, names, "a.txt")
		require.NoError(t, p.Close(fd))
	})
}

func TestWriteToStdinKillsProcessWithExitCodeNegativeOne(t *testing.T) {
	dev := blockdev.NewMemDevice(256)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Done() })

	s := sched.New(sched.ModePriority)
	parent := s.Current()

	var exitCode int
	var started sync.WaitGroup
	started.Add(1)
	var childTid int32
	s.Create(parent, "bad-stdin-writer", sched.PriDefault, func(tt *sched.Thread) {
		childTid = tt.Tid()
		started.Done()
		p, err := filesys.NewProcess(fs, s, tt)
		require.NoError(t, err)
		_, err = p.Write(0, []byte("oops"))
		assert.Error(t, err)
	})
	started.Wait()

	exitCode, ok := s.Wait(parent, childTid)
	require.True(t, ok)
	assert.Equal(t, -1, exitCode)
}

func TestExecReturnsChildTidAndWaitObservesExitCode(t *testing.T) {
	dev := blockdev.NewMemDevice(256)
	fs, err := filesys.Format(dev, 64)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Done() })

	s := sched.New(sched.ModePriority)
	runProcess(t, s, fs, func(p *filesys.Process) {
		childTid, ok := p.Exec("child", func(child *filesys.Process) bool {
			ok, err := child.Create("from-child.txt", 0)
			require.NoError(t, err)
			require.True(t, ok)
			child.Exit(7)
			return true
		})
		require.True(t, ok)

		code, ok := p.Wait(childTid)
		require.True(t, ok)
		assert.Equal(t, 7, code)

		fd, err := p.Open("from-child.txt")
		require.NoError(t, err)
		require.NoError(t, p.Close(fd))
	})
}
