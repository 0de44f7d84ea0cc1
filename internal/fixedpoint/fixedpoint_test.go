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

package fixedpoint_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/internal/fixedpoint"
	"github.com/stretchr/testify/assert"
)

func TestFromIntToInt(t *testing.T) {
	assert.Equal(t, 59, fixedpoint.FromInt(59).ToInt())
	assert.Equal(t, -59, fixedpoint.FromInt(-59).ToInt())
	assert.Equal(t, 0, fixedpoint.FromInt(0).ToInt())
}

func TestToIntRound(t *testing.T) {
	tests := []struct {
		name string
		x    fixedpoint.T
		want int
	}{
		{"exact", fixedpoint.FromInt(5), 5},
		{"round up positive", fixedpoint.FromInt(5).Add(fixedpoint.T(fixedpoint.F / 2)), 6},
		{"round down just below half positive", fixedpoint.FromInt(5).Add(fixedpoint.T(fixedpoint.F/2 - 1)), 5},
		{"round away from zero negative", fixedpoint.FromInt(-5).Sub(fixedpoint.T(fixedpoint.F / 2)), -6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.x.ToIntRound())
		})
	}
}

func TestArithmetic(t *testing.T) {
	a := fixedpoint.FromInt(4)
	b := fixedpoint.FromInt(2)

	assert.Equal(t, fixedpoint.FromInt(6), a.Add(b))
	assert.Equal(t, fixedpoint.FromInt(2), a.Sub(b))
	assert.Equal(t, fixedpoint.FromInt(8), a.Mul(b))
	assert.Equal(t, fixedpoint.FromInt(2), a.Div(b))
	assert.Equal(t, fixedpoint.FromInt(5), a.AddInt(1))
	assert.Equal(t, fixedpoint.FromInt(3), a.SubInt(1))
}

func TestMulDivNoOverflow(t *testing.T) {
	// Reproduces the MLFQ load_avg/recent_cpu coefficient computation,
	// which must widen to int64 before multiplying to avoid overflow.
	loadAvg := fixedpoint.FromInt(100)
	coefficient := loadAvg.MulInt(2).Div(loadAvg.MulInt(2).AddInt(1))
	result := coefficient.Mul(fixedpoint.FromInt(1000))
	assert.True(t, result.ToInt() > 0)
}

func TestClamp(t *testing.T) {
	lo, hi := fixedpoint.FromInt(0), fixedpoint.FromInt(63)
	assert.Equal(t, hi, fixedpoint.FromInt(100).Clamp(lo, hi))
	assert.Equal(t, lo, fixedpoint.FromInt(-5).Clamp(lo, hi))
	assert.Equal(t, fixedpoint.FromInt(30), fixedpoint.FromInt(30).Clamp(lo, hi))
}
