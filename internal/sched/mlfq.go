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

import "github.com/pintosfs/pintosfs/internal/fixedpoint"

// SetNice sets t's MLFQ nice value, recomputes its priority immediately,
// and yields, mirroring thread_set_nice.
func (s *Scheduler) SetNice(t *Thread, nice int) {
	s.mu.Lock()
	t.nice = nice
	s.updatePriorityMLFQLocked(t)
	s.mu.Unlock()
	s.Yield(t)
}

// LoadAvg returns 100 times the current system load average, rounded,
// per thread_get_load_avg.
func (s *Scheduler) LoadAvg() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAvg.MulInt(100).ToIntRound()
}

// RecentCPU returns 100 times t's recent_cpu value, rounded, per
// thread_get_recent_cpu.
func (s *Scheduler) RecentCPU(t *Thread) int {
	return t.recentCPU.MulInt(100).ToIntRound()
}

// Tick drives both preemption and, in MLFQ mode, the periodic
// recent_cpu/priority/load_avg recomputations described in spec.md
// §4.5. timerFreqHz is the number of ticks per second of simulated wall
// time. It returns true if the calling driver should now yield the
// current thread (time-slice expired); true preemption of a running Go
// goroutine is not possible without a cooperative checkpoint, so the
// driver (or the thread body itself, at a loop boundary) is expected to
// call Yield when this returns true — a documented simplification, not
// silent.
func (s *Scheduler) Tick(timerFreqHz int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	cur := s.current

	if s.mode == ModeMLFQ {
		if cur != s.idle {
			cur.recentCPU = cur.recentCPU.AddInt(1)
		}
		if s.ticks%4 == 0 {
			for _, t := range s.all {
				s.updatePriorityMLFQLocked(t)
			}
		}
		if timerFreqHz > 0 && s.ticks%int64(timerFreqHz) == 0 {
			s.recomputeLoadAvgLocked()
			for _, t := range s.all {
				if t != s.idle {
					s.updateRecentCPULocked(t)
				}
			}
		}
	}

	cur.ticksThisSlice++
	return cur.ticksThisSlice >= TimeSlice
}

// updatePriorityMLFQLocked recomputes t's priority from recent_cpu and
// nice, clamped to [PriMin, PriMax]. Callers must hold s.mu.
func (s *Scheduler) updatePriorityMLFQLocked(t *Thread) {
	if t == s.idle {
		return
	}
	p := PriMax - t.recentCPU.DivInt(4).ToInt() - 2*t.nice
	switch {
	case p > PriMax:
		p = PriMax
	case p < PriMin:
		p = PriMin
	}
	if t.state == StateReady && p != t.effectivePriority {
		s.repositionReadyLocked(t, p)
	}
	t.basePriority = p
	t.effectivePriority = p
}

// recomputeLoadAvgLocked applies
// load_avg := (59/60)*load_avg + (1/60)*ready_count
// where ready_count counts every ready thread plus one if the current
// thread is not idle. Callers must hold s.mu.
func (s *Scheduler) recomputeLoadAvgLocked() {
	readyCount := 0
	for _, q := range s.ready {
		readyCount += q.Len()
	}
	if s.current != s.idle {
		readyCount++
	}

	coeff := fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	addend := fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60)).MulInt(readyCount)
	s.loadAvg = coeff.Mul(s.loadAvg).Add(addend)
}

// updateRecentCPULocked applies
// recent_cpu := (2*load_avg / (2*load_avg + 1)) * recent_cpu + nice,
// computing the coefficient before multiplying to avoid overflow, per
// spec.md §4.5. Callers must hold s.mu.
func (s *Scheduler) updateRecentCPULocked(t *Thread) {
	twiceLoad := s.loadAvg.MulInt(2)
	coeff := twiceLoad.Div(twiceLoad.AddInt(1))
	t.recentCPU = coeff.Mul(t.recentCPU).AddInt(t.nice)
}
