// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package freelist implements a tiny, unsynchronized LIFO pool of untyped
// pointers. Callers are expected to provide their own locking; see
// buffer.DefaultMessageProvider for the expected usage pattern.
package freelist

import "unsafe"

// Freelist is a LIFO stack of pointers with no synchronization of its own.
// The zero value is an empty, ready to use Freelist.
type Freelist struct {
	items []unsafe.Pointer
}

// Get pops the most recently Put pointer, or returns nil if the list is
// empty.
func (l *Freelist) Get() unsafe.Pointer {
	n := len(l.items)
	if n == 0 {
		return nil
	}

	p := l.items[n-1]
	l.items[n-1] = nil
	l.items = l.items[:n-1]

	return p
}

// Put pushes p onto the list for later reuse.
func (l *Freelist) Put(p unsafe.Pointer) {
	l.items = append(l.items, p)
}

// Len reports the number of pointers currently held.
func (l *Freelist) Len() int {
	return len(l.items)
}
