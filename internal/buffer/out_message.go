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

package buffer

import (
	"fmt"
	"unsafe"

	"github.com/jacobsa/fuse/internal/fusekernel"
)

// OutMessageInitialSize is the size of the leading header in every
// properly-constructed OutMessage. Reset brings the message back to this
// size.
const OutMessageInitialSize = uintptr(unsafe.Sizeof(fusekernel.OutHeader{}))

// memclr zeros the n bytes starting at p.
func memclr(p unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(p), int(n))
	for i := range b {
		b[i] = 0
	}
}

// memmove copies n bytes from src to dst. The regions may not overlap; that
// invariant is upheld by every caller in this package (dst always points
// into freshly grown, previously unused space).
func memmove(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(dst), int(n))
	s := unsafe.Slice((*byte)(src), int(n))
	copy(d, s)
}

// OutMessage provides a mechanism for constructing a single contiguous fuse
// message from multiple segments, where the first segment is always a
// fusekernel.OutHeader message.
//
// Must be initialized with Reset.
type OutMessage struct {
	// The offset into the buffer to which we've grown, i.e. the current
	// length of the message. Always >= OutMessageInitialSize once Reset has
	// run.
	offset uintptr

	buf [OutMessageInitialSizeBound]byte
}

// OutMessageInitialSizeBound is the fixed backing capacity for an
// OutMessage: the header plus the largest payload a single FUSE reply will
// ever carry.
const OutMessageInitialSizeBound = 512 + MaxReadSize

// Reset resets m so that it's ready to be used again. Afterward, the contents
// are solely a zeroed fusekernel.OutHeader struct.
func (m *OutMessage) Reset() {
	if m.offset == 0 {
		m.offset = OutMessageInitialSize
	}

	memclr(unsafe.Pointer(&m.buf[0]), OutMessageInitialSize)
	m.offset = OutMessageInitialSize
}

// OutHeader returns a pointer to the header at the start of the message.
func (m *OutMessage) OutHeader() (h *fusekernel.OutHeader) {
	return (*fusekernel.OutHeader)(unsafe.Pointer(&m.buf[0]))
}

// Grow grows m's buffer by the given number of bytes, returning a pointer to
// the start of the new segment, which is guaranteed to be zeroed. If there is
// insufficient space, it returns nil.
func (m *OutMessage) Grow(n uintptr) (p unsafe.Pointer) {
	p = m.GrowNoZero(n)
	if p == nil {
		return nil
	}

	memclr(p, n)
	return p
}

// GrowNoZero is equivalent to Grow, except the new segment is not zeroed. Use
// with caution!
func (m *OutMessage) GrowNoZero(n uintptr) (p unsafe.Pointer) {
	if m.offset == 0 {
		m.offset = OutMessageInitialSize
	}

	if m.offset+n > uintptr(len(m.buf)) {
		return nil
	}

	p = unsafe.Pointer(&m.buf[m.offset])
	m.offset += n

	return p
}

// ShrinkTo shrinks m to the given size. It panics if the size is greater than
// Len() or less than OutMessageInitialSize.
func (m *OutMessage) ShrinkTo(n uintptr) {
	if n > m.offset {
		panic(fmt.Sprintf("ShrinkTo(%d) with Len() == %d", n, m.offset))
	}
	if n < OutMessageInitialSize {
		panic(fmt.Sprintf("ShrinkTo(%d) below header size %d", n, OutMessageInitialSize))
	}

	m.offset = n
}

// Append is equivalent to growing by len(src), then copying src over the new
// segment. It panics if there is not enough room available.
func (m *OutMessage) Append(src []byte) {
	p := m.GrowNoZero(uintptr(len(src)))
	if p == nil {
		panic(fmt.Sprintf("Can't grow %d bytes", len(src)))
	}

	if len(src) == 0 {
		return
	}
	memmove(p, unsafe.Pointer(&src[0]), uintptr(len(src)))
}

// AppendString is like Append, but accepts string input.
func (m *OutMessage) AppendString(src string) {
	p := m.GrowNoZero(uintptr(len(src)))
	if p == nil {
		panic(fmt.Sprintf("Can't grow %d bytes", len(src)))
	}

	if len(src) == 0 {
		return
	}
	b := []byte(src)
	memmove(p, unsafe.Pointer(&b[0]), uintptr(len(b)))
}

// Len returns the current size of the message, including the leading header.
func (m *OutMessage) Len() uintptr {
	if m.offset == 0 {
		return OutMessageInitialSize
	}
	return m.offset
}

// Bytes returns a reference to the current contents of the buffer, including
// the leading header.
func (m *OutMessage) Bytes() []byte {
	return m.buf[:m.Len()]
}

// NewOutMessage allocates a ready-to-use OutMessage sized to hold at least
// extra additional bytes beyond the header; the convenience constructor
// shape operation wrappers expect (buffer.NewOutMessage(size)).
func NewOutMessage(extra uintptr) OutMessage {
	var m OutMessage
	m.Reset()
	return m
}
