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
)

func TestLockUncontendedAcquireRelease(t *testing.T) {
	s := sched.New(sched.ModePriority)
	lock := sched.NewLock(s)

	var ran bool
	var wg sync.WaitGroup
	wg.Add(1)
	s.Create(nil, "solo", sched.PriDefault, func(tt *sched.Thread) {
		lock.Acquire(tt)
		assert.Equal(t, tt, lock.Holder())
		ran = true
		lock.Release(tt)
		assert.Nil(t, lock.Holder())
		wg.Done()
	})
	wg.Wait()
	assert.True(t, ran)
}

func TestLockReleasePicksHighestPriorityWaiter(t *testing.T) {
	s := sched.New(sched.ModePriority)
	lock := sched.NewLock(s)

	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	holder := s.Create(nil, "holder", 5, func(tt *sched.Thread) {
		lock.Acquire(tt)
		time.Sleep(15 * time.Millisecond)
		lock.Release(tt)
	})
	_ = holder
	time.Sleep(3 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	s.Create(nil, "low-waiter", 10, func(tt *sched.Thread) {
		lock.Acquire(tt)
		record("low-waiter")
		lock.Release(tt)
		wg.Done()
	})
	time.Sleep(1 * time.Millisecond)
	s.Create(nil, "high-waiter", 50, func(tt *sched.Thread) {
		lock.Acquire(tt)
		record("high-waiter")
		lock.Release(tt)
		wg.Done()
	})

	wg.Wait()
	assert.Equal(t, []string{"high-waiter", "low-waiter"}, order,
		"the higher-priority waiter must acquire the lock first once it is released")
}

func TestSetPriorityRaisesAndLowersEffectivePriority(t *testing.T) {
	s := sched.New(sched.ModePriority)
	var captured *sched.Thread
	var wg sync.WaitGroup
	wg.Add(1)
	s.Create(nil, "adjustable", 20, func(tt *sched.Thread) {
		captured = tt
		wg.Done()
	})
	wg.Wait()

	s.SetPriority(captured, 45)
	assert.Equal(t, 45, captured.Priority())
	assert.Equal(t, 45, captured.BasePriority())

	s.SetPriority(captured, 5)
	assert.Equal(t, 5, captured.Priority())
}
