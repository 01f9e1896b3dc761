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
	"io"
	"unsafe"

	"github.com/jacobsa/fuse/internal/fusekernel"
)

var inHeaderSize = int(unsafe.Sizeof(fusekernel.InHeader{}))

// InMessage is an incoming message from the kernel, including the leading
// fusekernel.InHeader struct. It provides storage for messages and
// convenient access to their contents.
type InMessage struct {
	buf [MaxReadSize]byte
	n   int // number of valid bytes in buf, as filled by the last Init
	off int // consumption offset, always >= inHeaderSize
}

// NewInMessage returns a freshly allocated, zeroed InMessage ready for Init.
func NewInMessage() *InMessage {
	return &InMessage{}
}

// Init initializes m with the data read by a single call to r.Read. The
// first call to Consume will consume the bytes directly after the
// fusekernel.InHeader struct.
func (m *InMessage) Init(r io.Reader) (err error) {
	n, err := r.Read(m.buf[:])
	if err != nil {
		return err
	}

	if n < inHeaderSize {
		return fmt.Errorf("read %d bytes, need at least %d for header", n, inHeaderSize)
	}

	m.n = n
	m.off = inHeaderSize

	return nil
}

// Header returns a reference to the header read in the most recent call to
// Init.
func (m *InMessage) Header() (h *fusekernel.InHeader) {
	return (*fusekernel.InHeader)(unsafe.Pointer(&m.buf[0]))
}

// Consume consumes the next n bytes from the message, returning a nil
// pointer if there are fewer than n bytes available.
func (m *InMessage) Consume(n uintptr) (p unsafe.Pointer) {
	in := int(n)
	if in < 0 || m.off+in > m.n {
		return nil
	}

	p = unsafe.Pointer(&m.buf[m.off])
	m.off += in

	return p
}

// ConsumeBytes is equivalent to Consume, except it returns a slice of bytes.
// The result will be nil if Consume fails.
func (m *InMessage) ConsumeBytes(n uintptr) (b []byte) {
	p := m.Consume(n)
	if p == nil {
		return nil
	}

	return unsafe.Slice((*byte)(p), int(n))
}

// Remaining returns the number of unconsumed bytes left in the message.
func (m *InMessage) Remaining() int {
	return m.n - m.off
}

// Len returns the total number of valid bytes read by the last Init call,
// including the header.
func (m *InMessage) Len() int {
	return m.n
}
