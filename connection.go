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

package fuse

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"runtime"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
)

// Ask the Linux kernel for larger read requests.
//
// As of 2015-03-26, the behavior in the kernel is:
//
//   - (https://tinyurl.com/2eakn5e9, https://tinyurl.com/mry9e33d) Set the
//     local variable ra_pages to be init_response->max_readahead divided by
//     the page size.
//
//   - (https://tinyurl.com/2eakn5e9, https://tinyurl.com/mbpshk8h) Set
//     backing_dev_info::ra_pages to the min of that value and what was sent in
//     the request's max_readahead field.
//
//   - (https://tinyurl.com/57hpfu4x) Use backing_dev_info::ra_pages when
//     deciding how much to read ahead.
//
//   - (https://tinyurl.com/ywhfcfte) Don't read ahead at all if that field is
//     zero.
//
// Reading a page at a time is a drag. Ask for a larger size.
const maxReadahead = 1 << 20

// Connection represents a connection to the fuse kernel process. It is used
// to receive ops from the kernel and, via the ops it hands out, to reply to
// them.
type Connection struct {
	cfg         MountConfig
	debugLogger *log.Logger
	errorLogger *log.Logger

	// The device through which we're talking to the kernel, and the protocol
	// version that we're using to talk to it.
	dev      *os.File
	protocol fusekernel.Protocol

	messages buffer.DefaultMessageProvider

	mu sync.Mutex

	// A map from fuse "unique" request ID (*not* the op ID for logging used
	// above) to a function that cancels its associated context.
	//
	// GUARDED_BY(mu)
	cancelFuncs map[uint64]func()
}

// newConnection wraps the supplied file descriptor connected to the kernel,
// and blocks performing the INIT handshake before returning. You must
// eventually call c.close().
//
// The loggers may be nil.
func newConnection(
	cfg MountConfig,
	debugLogger *log.Logger,
	errorLogger *log.Logger,
	dev *os.File) (*Connection, error) {
	c := &Connection{
		cfg:         cfg,
		debugLogger: debugLogger,
		errorLogger: errorLogger,
		dev:         dev,
		cancelFuncs: make(map[uint64]func()),
	}

	if err := c.init(); err != nil {
		c.close()
		return nil, fmt.Errorf("init: %v", err)
	}

	return c, nil
}

// init performs the INIT handshake necessary for the mount to complete.
func (c *Connection) init() error {
	op, err := c.ReadOp()
	if err != nil {
		return fmt.Errorf("reading init op: %v", err)
	}

	initOp, ok := op.(*fuseops.InitOp)
	if !ok {
		op.Respond(EPROTO)
		return fmt.Errorf("expected *fuseops.InitOp, got %T", op)
	}

	// Make sure the protocol version spoken by the kernel is new enough.
	min := fusekernel.Protocol{Major: fusekernel.ProtoVersionMinMajor, Minor: fusekernel.ProtoVersionMinMinor}
	if !initOp.Kernel.GE(min.Major, min.Minor) {
		initOp.Respond(EPROTO)
		return fmt.Errorf("version too old: %v", initOp.Kernel)
	}

	// Downgrade our protocol if necessary.
	c.protocol = fusekernel.Protocol{Major: fusekernel.ProtoVersionMaxMajor, Minor: fusekernel.ProtoVersionMaxMinor}
	if !initOp.Kernel.GE(c.protocol.Major, c.protocol.Minor) {
		c.protocol = initOp.Kernel
	}

	cacheSymlinks := initOp.Flags&fusekernel.InitCacheSymlinks > 0
	noOpenSupport := initOp.Flags&fusekernel.InitNoOpenSupport > 0
	noOpendirSupport := initOp.Flags&fusekernel.InitNoOpendirSupport > 0

	initOp.Library = c.protocol
	initOp.MaxReadahead = maxReadahead
	initOp.MaxWrite = buffer.MaxWriteSize

	initOp.Flags = 0

	// Tell the kernel not to use pitifully small 4 KiB writes.
	initOp.Flags |= fusekernel.InitBigWrites

	if c.cfg.EnableAsyncReads {
		initOp.Flags |= fusekernel.InitAsyncRead
	}

	if !c.cfg.DisableWritebackCaching {
		initOp.Flags |= fusekernel.InitWritebackCache
	}

	if c.cfg.EnableSymlinkCaching && cacheSymlinks {
		initOp.Flags |= fusekernel.InitCacheSymlinks
	}

	if c.cfg.EnableNoOpenSupport && noOpenSupport {
		initOp.Flags |= fusekernel.InitNoOpenSupport
	}

	if c.cfg.EnableNoOpendirSupport && noOpendirSupport {
		initOp.Flags |= fusekernel.InitNoOpendirSupport
	}

	if c.cfg.EnableParallelDirOps {
		initOp.Flags |= fusekernel.InitParallelDirOps
	}

	if c.cfg.EnableAtomicTrunc {
		initOp.Flags |= fusekernel.InitAtomicTrunc
	}

	if c.cfg.EnableReaddirplus {
		initOp.Flags |= fusekernel.InitDoReaddirplus

		if c.cfg.EnableAutoReaddirplus {
			initOp.Flags |= fusekernel.InitReaddirplusAuto
		}
	}

	initOp.Respond(nil)
	return nil
}

// debugLog logs information about an operation with the given fuse unique
// ID. calldepth is the depth to use when recovering file:line information
// with runtime.Caller.
func (c *Connection) debugLog(
	fuseID uint64,
	calldepth int,
	format string,
	v ...interface{}) {
	if c.debugLogger == nil {
		return
	}

	_, file, line, ok := runtime.Caller(calldepth)
	if !ok {
		file = "???"
	}

	fileLine := fmt.Sprintf("%v:%v", path.Base(file), line)
	msg := fmt.Sprintf("Op 0x%08x %24s] %v", fuseID, fileLine, fmt.Sprintf(format, v...))
	c.debugLogger.Println(msg)
}

// LOCKS_EXCLUDED(c.mu)
func (c *Connection) recordCancelFunc(fuseID uint64, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cancelFuncs[fuseID]; ok {
		panic(fmt.Sprintf("already have cancel func for request %v", fuseID))
	}

	c.cancelFuncs[fuseID] = f
}

// beginOp sets up state for an op that is about to be handed to the user,
// returning the context that should be attached to it.
//
// LOCKS_EXCLUDED(c.mu)
func (c *Connection) beginOp(opCode fusekernel.Opcode, fuseID uint64) context.Context {
	ctx := context.Background()

	// Special case: On Darwin, osxfuse aggressively reuses "unique" request
	// IDs. This matters for Forget requests, which have no reply associated
	// and therefore have IDs that are immediately eligible for reuse. For
	// these, we should not record any state keyed on their ID.
	//
	// Cf. https://github.com/osxfuse/osxfuse/issues/208
	if opCode != fusekernel.OpForget {
		var cancel func()
		ctx, cancel = context.WithCancel(ctx)
		c.recordCancelFunc(fuseID, cancel)
	}

	return ctx
}

// finishOp cleans up all state associated with an op to which the user has
// responded. This must be called before a response is sent to the kernel,
// to avoid a race where the request's ID might be reused by osxfuse.
//
// LOCKS_EXCLUDED(c.mu)
func (c *Connection) finishOp(opCode fusekernel.Opcode, fuseID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opCode != fusekernel.OpForget {
		cancel, ok := c.cancelFuncs[fuseID]
		if !ok {
			panic(fmt.Sprintf("unknown request ID in finishOp: %v", fuseID))
		}

		cancel()
		delete(c.cancelFuncs, fuseID)
	}
}

// LOCKS_EXCLUDED(c.mu)
func (c *Connection) handleInterrupt(fuseID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// fuse.txt in the Linux kernel documentation defines the kernel <->
	// userspace protocol for interrupts: an interrupt request cannot be
	// delivered to userspace before the original request, so if we can't
	// find the ID to be interrupted here, the request has already been
	// replied to.
	//
	// Cf. https://github.com/osxfuse/osxfuse/issues/208
	cancel, ok := c.cancelFuncs[fuseID]
	if !ok {
		return
	}

	cancel()
}

// readMessage reads the next message from the kernel. The caller is
// responsible for returning it to the message provider.
func (c *Connection) readMessage() (*buffer.InMessage, error) {
	m := c.messages.GetInMessage()

	for {
		err := m.Init(c.dev)

		// Special cases:
		//
		//  *  ENODEV means fuse has hung up.
		//
		//  *  EINTR means we should try again (this seems to happen often on
		//     OS X, cf. http://golang.org/issue/11180).
		if pe, ok := err.(*os.PathError); ok {
			switch pe.Err {
			case syscall.ENODEV:
				err = io.EOF

			case syscall.EINTR:
				err = nil
				continue
			}
		}

		if err != nil {
			c.messages.PutInMessage(m)
			return nil, err
		}

		return m, nil
	}
}

// writeMessage writes the supplied bytes to the kernel.
func (c *Connection) writeMessage(msg []byte) error {
	// Avoid the retry loop in os.File.Write.
	n, err := syscall.Write(int(c.dev.Fd()), msg)
	if err != nil {
		return err
	}

	if n != len(msg) {
		return fmt.Errorf("wrote %d bytes; expected %d", n, len(msg))
	}

	return nil
}

// ReadOp consumes the next op from the kernel process. It returns io.EOF if
// the kernel has closed the connection.
//
// The returned op must eventually have Respond called on it exactly once;
// doing so drives this connection's reply to the kernel.
//
// This function delivers ops in exactly the order they are received from
// /dev/fuse. It must not be called multiple times concurrently.
func (c *Connection) ReadOp() (fuseops.Op, error) {
	for {
		inMsg, err := c.readMessage()
		if err != nil {
			return nil, err
		}

		ih := inMsg.Header()
		fuseID := ih.Unique
		opCode := ih.Opcode

		header := fuseops.OpHeader{
			Uid: ih.Uid,
			Gid: ih.Gid,
			Pid: ih.Pid,
		}

		outMsg := c.messages.GetOutMessage()
		ctx := c.beginOp(opCode, fuseID)

		// op is assigned below, once Convert returns; reply is not invoked
		// until the handler calls Respond, which happens strictly after
		// that assignment, so capturing it by reference here is safe. Each
		// loop iteration declares its own op, so concurrently in-flight
		// ops never share this variable.
		var op fuseops.Op
		reply := func(opErr error) {
			c.finishReply(inMsg, outMsg, fuseID, opCode, op, opErr)
		}

		op, err = fuseops.Convert(header, ctx, inMsg, outMsg, c.protocol, reply, nil)
		if err != nil {
			c.messages.PutOutMessage(outMsg)
			c.finishOp(opCode, fuseID)
			return nil, fmt.Errorf("fuseops.Convert: %v", err)
		}

		if c.debugLogger != nil {
			c.debugLog(fuseID, 1, "<- %s", op.ShortDesc())
		}

		// Handle interrupt requests inline; they are never handed to the
		// file system.
		if interruptOp, ok := op.(*fuseops.InterruptOp); ok {
			c.finishOp(opCode, fuseID)
			c.messages.PutInMessage(inMsg)
			c.messages.PutOutMessage(outMsg)
			c.handleInterrupt(interruptOp.FuseID)
			continue
		}

		return op, nil
	}
}

// finishReply performs everything that must happen once a handler has
// called Respond on an op: bookkeeping, logging, building the kernel-level
// response, writing it out, and returning the message buffers.
func (c *Connection) finishReply(
	inMsg *buffer.InMessage,
	outMsg *buffer.OutMessage,
	fuseID uint64,
	opCode fusekernel.Opcode,
	op fuseops.Op,
	opErr error) {
	defer func() {
		c.messages.PutInMessage(inMsg)
		c.messages.PutOutMessage(outMsg)
	}()

	c.finishOp(opCode, fuseID)

	logError := c.shouldLogError(op, opErr)

	if c.debugLogger != nil {
		if opErr == nil {
			c.debugLog(fuseID, 2, "-> %s", op.ShortDesc())
		} else if !logError {
			c.debugLog(fuseID, 2, "-> Error: %q", opErr.Error())
		}
	}

	if logError {
		c.errorLogger.Printf("Op 0x%08x %T] -> Error: %q", fuseID, op, opErr)
	}

	// The kernel does not expect a reply to Forget or BatchForget.
	if opCode == fusekernel.OpForget || opCode == fusekernel.OpBatchForget {
		return
	}

	var reply buffer.OutMessage
	reply.Reset()

	if opErr == nil {
		built, err := op.KernelResponse(c.protocol)
		if err != nil {
			if c.errorLogger != nil {
				c.errorLogger.Printf("Op 0x%08x %T] building response: %v", fuseID, op, err)
			}
			return
		}
		reply = built
	}

	out := reply.OutHeader()
	out.Unique = fuseID
	out.Error = ToErrno(opErr)
	out.Len = uint32(reply.Len())

	if werr := c.writeMessage(reply.Bytes()); werr != nil {
		if c.errorLogger != nil {
			c.errorLogger.Printf("writeMessage: %v", werr)
		}
	}
}

// shouldLogError reports whether an error response is surprising enough to
// be worth logging, as opposed to one of the handful of cases the kernel
// provokes as a matter of course.
func (c *Connection) shouldLogError(op fuseops.Op, err error) bool {
	if err == nil {
		return false
	}

	if c.errorLogger == nil {
		return false
	}

	switch op.(type) {
	case *fuseops.LookUpInodeOp:
		// It is totally normal for the kernel to ask to look up an inode by
		// name and find the name doesn't exist, e.g. when linking a new file.
		if err == ENOENT {
			return false
		}
	case *fuseops.GetXattrOp, *fuseops.ListXattrOp:
		if err == ENOSYS || err == ENODATA || err == ERANGE {
			return false
		}
	case *fuseops.UnknownOp:
		// Don't bother the user with methods we intentionally don't support.
		if err == ENOSYS {
			return false
		}
	}

	return true
}

// close closes the connection. Must not be called until operations read
// from the connection have been responded to.
func (c *Connection) close() error {
	return c.dev.Close()
}
