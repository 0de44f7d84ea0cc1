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

package sched_test

import (
	"sync"
	"testing"
	"time"

	"github.com/pintosfs/pintosfs/internal/sched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRunsEntryAndExits(t *testing.T) {
	s := sched.New(sched.ModePriority)
	var ran bool
	var wg sync.WaitGroup
	wg.Add(1)

	s.Create(nil, "worker", sched.PriDefault, func(tt *sched.Thread) {
		ran = true
		wg.Done()
	})

	wg.Wait()
	assert.True(t, ran)
}

func TestWaitReturnsExitCodeExactlyOnce(t *testing.T) {
	s := sched.New(sched.ModePriority)
	parent := s.Current()

	var childTid int32
	var started sync.WaitGroup
	started.Add(1)
	child := s.Create(parent, "child", sched.PriDefault, func(tt *sched.Thread) {
		childTid = tt.Tid()
		started.Done()
	})
	started.Wait()
	time.Sleep(5 * time.Millisecond)

	code, ok := s.Wait(parent, child.Tid())
	require.True(t, ok)
	assert.Equal(t, 0, code)
	assert.Equal(t, child.Tid(), childTid)

	_, ok = s.Wait(parent, child.Tid())
	assert.False(t, ok, "a second wait on the same child must fail")
}

func TestWaitOnUnknownTidFails(t *testing.T) {
	s := sched.New(sched.ModePriority)
	parent := s.Current()

	_, ok := s.Wait(parent, 9999)
	assert.False(t, ok)
}

func TestPriorityDonationToLockHolder(t *testing.T) {
	s := sched.New(sched.ModePriority)

	lock := sched.NewLock(s)
	low := s.Create(nil, "low", 10, func(tt *sched.Thread) {
		lock.Acquire(tt)
		time.Sleep(10 * time.Millisecond)
		lock.Release(tt)
	})
	time.Sleep(2 * time.Millisecond)

	var observedDuringHold int
	var wg sync.WaitGroup
	wg.Add(1)
	s.Create(nil, "high", 40, func(tt *sched.Thread) {
		lock.Acquire(tt)
		lock.Release(tt)
		wg.Done()
	})

	time.Sleep(5 * time.Millisecond)
	observedDuringHold = low.Priority()
	wg.Wait()

	assert.Equal(t, 40, observedDuringHold, "low's effective priority must be raised to the waiter's priority while it holds the contended lock")
}

func TestMLFQPriorityStaysWithinBounds(t *testing.T) {
	s := sched.New(sched.ModeMLFQ)
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		s.Create(nil, "busy", sched.PriDefault, func(tt *sched.Thread) {
			wg.Done()
		})
	}
	wg.Wait()

	for i := 0; i < 400; i++ {
		s.Tick(100)
	}

	for _, th := range s.AllThreads() {
		assert.GreaterOrEqual(t, th.Priority(), sched.PriMin)
		assert.LessOrEqual(t, th.Priority(), sched.PriMax)
	}
}

func TestExecReturnsChildTidOnSuccessAndNegOneOnFailure(t *testing.T) {
	s := sched.New(sched.ModePriority)
	parent := s.Current()

	tid, ok := s.Exec(parent, "prog-ok", func(tt *sched.Thread) bool { return true })
	assert.True(t, ok)
	assert.NotEqual(t, int32(-1), tid)

	_, ok = s.Exec(parent, "prog-fail", func(tt *sched.Thread) bool { return false })
	assert.False(t, ok)
}
