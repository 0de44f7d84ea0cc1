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

package sched

// maxDonationDepth bounds the walk up an awaitedLock -> holder chain,
// per spec.md §4.5's "maximum chain depth of 8".
const maxDonationDepth = 8

// Lock is a mutex with priority donation in Mode A, grounded on
// threads/synch.c's struct lock plus the donation walk described in
// thread_set_priority/lock_acquire. In Mode B (MLFQ) donation never
// fires because priorities are derived from recent_cpu instead.
//
// Each waiter parks on a channel of its own rather than a shared
// semaphore: Release must hand the lock to the highest-priority
// waiter specifically, and a generic semaphore only ever wakes
// whoever has been blocked longest.
type Lock struct {
	sched *Scheduler

	holder  *Thread
	waiters map[*Thread]chan struct{}
}

// NewLock creates an unheld lock bound to sched.
func NewLock(sched *Scheduler) *Lock {
	return &Lock{
		sched:   sched,
		waiters: make(map[*Thread]chan struct{}),
	}
}

// Holder returns the thread currently holding the lock, or nil.
func (l *Lock) Holder() *Thread {
	l.sched.mu.Lock()
	defer l.sched.mu.Unlock()
	return l.holder
}

// Acquire blocks t until it holds the lock, donating t's priority up
// the holder chain in Mode A while t waits.
func (l *Lock) Acquire(t *Thread) {
	s := l.sched

	s.mu.Lock()
	holder := l.holder
	if holder == nil {
		l.holder = t
		t.ownedLocks[l] = true
		s.mu.Unlock()
		return
	}

	ch := make(chan struct{})
	t.awaitedLock = l
	l.waiters[t] = ch
	if s.mode == ModePriority {
		s.donateLocked(holder, t.effectivePriority, 0)
	}
	s.mu.Unlock()

	<-ch

	s.mu.Lock()
	t.awaitedLock = nil
	s.mu.Unlock()
}

// Release drops t's ownership of the lock, recomputes t's own
// effective priority from whatever it still owns, and hands the lock
// to the highest-priority waiter (if any).
func (l *Lock) Release(t *Thread) {
	s := l.sched

	s.mu.Lock()
	delete(t.ownedLocks, l)
	t.effectivePriority = s.recomputePriorityLocked(t)

	var nextCh chan struct{}
	if len(l.waiters) > 0 {
		var next *Thread
		for w := range l.waiters {
			if next == nil || w.effectivePriority > next.effectivePriority {
				next = w
			}
		}
		nextCh = l.waiters[next]
		delete(l.waiters, next)
		l.holder = next
		next.ownedLocks[l] = true
	} else {
		l.holder = nil
	}
	s.mu.Unlock()

	if nextCh != nil {
		close(nextCh)
	}

	// No scheduleLocked call here: lock_release doesn't force the
	// releasing thread off the CPU either, it just wakes the waiter
	// and lets the next tick or voluntary Yield reschedule.
}

// donateLocked walks the awaitedLock -> holder chain from holder,
// raising every link's effective priority to at least priority, bounded
// to maxDonationDepth. Callers must hold s.mu.
func (s *Scheduler) donateLocked(holder *Thread, priority int, depth int) {
	if holder == nil || depth >= maxDonationDepth {
		return
	}
	if priority <= holder.effectivePriority {
		return
	}
	if holder.state == StateReady {
		s.repositionReadyLocked(holder, priority)
	}
	holder.effectivePriority = priority
	if holder.awaitedLock != nil {
		s.donateLocked(holder.awaitedLock.holder, priority, depth+1)
	}
}

// recomputePriorityLocked returns t's effective priority: its base
// priority, or the highest priority of any thread still waiting on a
// lock t still owns, whichever is greater. Callers must hold s.mu.
func (s *Scheduler) recomputePriorityLocked(t *Thread) int {
	best := t.basePriority
	for lk := range t.ownedLocks {
		for w := range lk.waiters {
			if w.effectivePriority > best {
				best = w.effectivePriority
			}
		}
	}
	return best
}
