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

package kerntrace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pintosfs/pintosfs/internal/kerntrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newInMemoryExporter(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	ex := tracetest.NewInMemoryExporter()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(ex)))
	return ex
}

func TestStartSyscallRecordsServerSpanNamedForTheCommand(t *testing.T) {
	ex := newInMemoryExporter(t)

	_, end := kerntrace.StartSyscall(context.Background(), "create")
	end(nil)

	spans := ex.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "create", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	assert.Empty(t, spans[0].Status.Description)
}

func TestStartSyscallRecordsErrorOnTheSpan(t *testing.T) {
	ex := newInMemoryExporter(t)

	_, end := kerntrace.StartSyscall(context.Background(), "chdir")
	end(errors.New("no such directory"))

	spans := ex.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}
