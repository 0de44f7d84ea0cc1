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

package kqueue_test

import (
	"testing"

	"github.com/pintosfs/pintosfs/internal/kqueue"
	"github.com/stretchr/testify/assert"
)

func TestFIFOOrder(t *testing.T) {
	q := kqueue.New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 1, q.PeekStart())
	assert.Equal(t, 1, q.Pop())
	assert.Equal(t, 2, q.Pop())
	assert.Equal(t, 3, q.Pop())
	assert.True(t, q.IsEmpty())
}

func TestPopEmptyPanics(t *testing.T) {
	q := kqueue.New[int]()
	assert.Panics(t, func() { q.Pop() })
	assert.Panics(t, func() { q.PeekStart() })
}

func TestRemoveMiddleElement(t *testing.T) {
	q := kqueue.New[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	got, ok := q.Remove(func(s string) bool { return s == "b" })
	assert.True(t, ok)
	assert.Equal(t, "b", got)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "a", q.Pop())
	assert.Equal(t, "c", q.Pop())
}

func TestRemoveTailUpdatesEnd(t *testing.T) {
	q := kqueue.New[int]()
	q.Push(1)
	q.Push(2)

	_, ok := q.Remove(func(v int) bool { return v == 2 })
	assert.True(t, ok)

	q.Push(3)
	assert.Equal(t, 1, q.Pop())
	assert.Equal(t, 3, q.Pop())
}

func TestRemoveNoMatch(t *testing.T) {
	q := kqueue.New[int]()
	q.Push(1)

	_, ok := q.Remove(func(v int) bool { return v == 99 })
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}
