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

// Package fixedpoint implements the 17.14 signed fixed-point arithmetic
// used by the MLFQ scheduler for recent_cpu and load_avg accounting.
package fixedpoint

// Shift is the binary point: 17 integer bits, 14 fractional bits.
const Shift = 14

// F is the scale factor, 2^14.
const F int32 = 1 << Shift

// T is a fixed-point number stored as a scaled int32.
type T int32

// Zero is the fixed-point representation of 0.
const Zero T = 0

// FromInt converts an integer to fixed-point.
func FromInt(n int) T {
	return T(int32(n) * F)
}

// ToInt truncates a fixed-point value towards zero.
func (x T) ToInt() int {
	return int(int32(x) / F)
}

// ToIntRound rounds a fixed-point value to the nearest integer, rounding
// away from zero on ties (matches the reference implementation's
// ftoi_round).
func (x T) ToIntRound() int {
	v := int32(x)
	if v >= 0 {
		return int((v + F/2) / F)
	}
	return int((v - F/2) / F)
}

// Add returns x + y.
func (x T) Add(y T) T {
	return x + y
}

// Sub returns x - y.
func (x T) Sub(y T) T {
	return x - y
}

// AddInt returns x + n.
func (x T) AddInt(n int) T {
	return x + FromInt(n)
}

// SubInt returns x - n.
func (x T) SubInt(n int) T {
	return x - FromInt(n)
}

// Mul returns x * y, widening to int64 before scaling back down to avoid
// overflow.
func (x T) Mul(y T) T {
	return T(int64(x) * int64(y) / int64(F))
}

// Div returns x / y, widening to int64 before scaling up to preserve
// precision.
func (x T) Div(y T) T {
	return T(int64(x) * int64(F) / int64(y))
}

// MulInt returns x * n.
func (x T) MulInt(n int) T {
	return T(int64(x) * int64(n))
}

// DivInt returns x / n.
func (x T) DivInt(n int) T {
	return T(int64(x) / int64(n))
}

// Clamp bounds x to [lo, hi].
func (x T) Clamp(lo, hi T) T {
	switch {
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
