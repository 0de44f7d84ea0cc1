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

package kernpanic_test

import (
	"errors"
	"testing"

	"github.com/pintosfs/pintosfs/internal/kernpanic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundary(f func()) (err error) {
	defer kernpanic.Recover(&err)
	f()
	return nil
}

func TestAssertPasses(t *testing.T) {
	err := boundary(func() {
		kernpanic.Assert(1+1 == 2, "math broke")
	})
	require.NoError(t, err)
}

func TestAssertFailsRecovered(t *testing.T) {
	err := boundary(func() {
		kernpanic.Assert(false, "free list slot %d double-allocated", 7)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "double-allocated")
}

func TestFatalWrapsCause(t *testing.T) {
	cause := errors.New("disk i/o error")
	err := boundary(func() {
		kernpanic.Fatal(cause, "reading sector %d", 12)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestRecoverRepanicsUnrelatedValues(t *testing.T) {
	assert.Panics(t, func() {
		defer kernpanic.Recover(new(error))
		panic("not a kernel fault")
	})
}
