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

// Package kerntrace emits one server-kind span per syscall dispatched
// through internal/filesys.Process, the way the teacher's FUSE
// dispatcher emitted one span per inbound op (LookUpInode, StatFS, and
// so on). There is no FUSE dispatcher here, so the span boundary is
// drawn around cmd/pintosfsd's shell-command dispatch loop instead.
package kerntrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartSyscall opens a server-kind span named for the syscall being
// dispatched (e.g. "create", "chdir"), returning a context carrying it
// and a func that ends it, recording err if non-nil.
func StartSyscall(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := otel.Tracer("pintosfs/kernel").Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
