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

// Package kernpanic is the last line of defense for invariants that must
// never be false: a corrupt on-disk magic number, a buffer cache slot
// handed out twice, a scheduler ready queue found non-empty when the
// kernel believes it idle. These are not ordinary errors — nothing
// sensible can be returned to a caller, so the kernel halts the faulting
// goroutine and lets the boot loop decide whether the whole machine goes
// down.
//
// Ordinary operation failures (bad path, disk full, permission denied)
// must never come through here; they are (T, error) returns. This
// package exists only for conditions the teaching kernel's authors
// consider impossible.
package kernpanic

import (
	"fmt"

	"github.com/pintosfs/pintosfs/internal/kernlog"
)

// Fault is the value recovered at the boot boundary.
type Fault struct {
	Msg   string
	Cause error
}

func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Cause)
	}
	return f.Msg
}

func (f *Fault) Unwrap() error { return f.Cause }

// Assert panics with a *Fault if cond is false. Used for invariants that
// checkInvariants-style helpers discover broken mid-operation.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	kernlog.Errorf("kernel invariant violated: %s", msg)
	panic(&Fault{Msg: msg})
}

// Fatal panics with a *Fault wrapping err. Used for disk I/O errors, which
// this kernel treats as unrecoverable rather than surfaced to callers.
func Fatal(err error, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	kernlog.Errorf("fatal kernel error: %s: %v", msg, err)
	panic(&Fault{Msg: msg, Cause: err})
}

// Recover is deferred at the boot boundary to turn a *Fault panic into
// an error instead of crashing the whole process. Any other panic value is
// re-raised: only recognized kernel faults are handled here.
func Recover(dst *error) {
	r := recover()
	if r == nil {
		return
	}
	f, ok := r.(*Fault)
	if !ok {
		panic(r)
	}
	*dst = f
}
