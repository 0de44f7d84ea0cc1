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

// Package sched is the single-CPU kernel scheduler: a priority-donation
// mode and an MLFQ mode sharing one ready-queue implementation, plus
// thread lifecycle (create/exit/wait/exec) built on an arena of child
// records. Grounded on original_source/pintos/src/threads/thread.c and
// threads/synch.c, adapted to goroutines standing in for kernel threads;
// see Scheduler's doc comment for how single-CPU bookkeeping and actual
// blocking are split.
package sched

import (
	"github.com/google/uuid"
	"github.com/pintosfs/pintosfs/internal/fixedpoint"
)

// Priority bounds, matching PRI_MIN/PRI_DEFAULT/PRI_MAX.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63

	// NiceMin and NiceMax bound a thread's MLFQ nice value.
	NiceMin = -20
	NiceMax = 20

	// TimeSlice is the number of ticks a thread runs before preemption
	// is requested.
	TimeSlice = 4
)

// State is a thread's scheduling state.
type State int

const (
	StateRunning State = iota
	StateReady
	StateBlocked
	StateDying
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateDying:
		return "dying"
	default:
		return "unknown"
	}
}

// Thread is the scheduler's view of one kernel thread: identity,
// scheduling state, priority (base and donated), and the MLFQ
// accounting fields, plus the process-lifecycle fields (parent,
// children, working directory) named in spec.md §3's Thread struct.
type Thread struct {
	tid  int32
	id   uuid.UUID
	name string

	state State

	basePriority      int
	effectivePriority int
	awaitedLock       *Lock
	ownedLocks        map[*Lock]bool

	nice      int
	recentCPU fixedpoint.T

	parent   *Thread
	asChild  *ChildRecord
	children []*ChildRecord

	cwdSector uint32

	ticksThisSlice int

	exitCode int
}

// Tid returns the thread's small integer identifier.
func (t *Thread) Tid() int32 { return t.tid }

// ID returns the thread's stable UUID, used to key child-record lookups
// so that a dangling raw pointer is never the only handle to a thread.
func (t *Thread) ID() uuid.UUID { return t.id }

// Name returns the thread's human-readable name.
func (t *Thread) Name() string { return t.name }

// State returns the thread's current scheduling state.
func (t *Thread) State() State { return t.state }

// Priority returns the thread's current effective priority.
func (t *Thread) Priority() int { return t.effectivePriority }

// BasePriority returns the thread's base (undonated) priority.
func (t *Thread) BasePriority() int { return t.basePriority }

// Nice returns the thread's MLFQ nice value.
func (t *Thread) Nice() int { return t.nice }

// RecentCPU returns the thread's MLFQ recent-CPU accounting value.
func (t *Thread) RecentCPU() fixedpoint.T { return t.recentCPU }

// Parent returns the thread's parent, or nil for the initial thread.
func (t *Thread) Parent() *Thread { return t.parent }

// ChildRecord is spec.md §3's "Child record": a tid, a liveness flag, an
// exit code, a wait-pending flag, and a one-shot wait semaphore. Owned
// jointly by the parent (as a list element) and the child (via
// asChild); freed by whichever participant observes the other dead
// second. Addressed by a stable ID rather than a raw pointer per the
// "cyclic ownership" design note, so a dangling back-pointer is never
// the only way to reach it.
type ChildRecord struct {
	id uuid.UUID

	tid         int32
	alive       bool
	exitCode    int
	waitPending bool

	waitSema chan struct{}

	parentDead bool
	childDead  bool
}

// ID returns the child record's stable arena key.
func (c *ChildRecord) ID() uuid.UUID { return c.id }

func newChildRecord(tid int32) *ChildRecord {
	return &ChildRecord{
		id:       uuid.New(),
		tid:      tid,
		alive:    true,
		waitSema: make(chan struct{}, 1),
	}
}
