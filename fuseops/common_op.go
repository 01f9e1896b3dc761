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

package fuseops

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
	"github.com/jacobsa/reqtrace"
)

// OpHeader carries the per-request identity fields every op exposes,
// regardless of kind.
type OpHeader struct {
	Uid uint32
	Gid uint32
	Pid uint32
}

// Op is implemented by every operation type in this package. A fuse.Server
// obtains one from fuse.Connection.ReadOp, hands it to a
// fuseutil.FileSystem method, and expects Respond to be called exactly
// once, from any goroutine, before the underlying kernel request is
// considered complete.
type Op interface {
	// Header returns the identity of the process that caused the op to be
	// sent.
	Header() OpHeader

	// Context returns a context that is cancelled if and when the kernel
	// explicitly interrupts the op.
	Context() context.Context

	// ShortDesc returns a short one-line description of the op, for logging.
	ShortDesc() string

	// Respond finishes the op, sending the result or error err to the
	// kernel. It must be called exactly once. A nil err indicates success;
	// the result fields that the concrete op type exposes must already be
	// filled in by the handler in that case.
	Respond(err error)

	// KernelResponse builds the wire-level reply for a successful op. It is
	// only ever called by the connection that produced the op, after
	// Respond(nil); never for Respond(non-nil).
	KernelResponse(protocol fusekernel.Protocol) (buffer.OutMessage, error)
}

// replyFunc is supplied by the connection that created an op. It is called
// exactly once, by commonOp.Respond, with whatever error the handler passed
// to Respond.
type replyFunc func(err error)

// commonOp is embedded in every concrete op type, providing the plumbing
// needed to implement everything in Op except KernelResponse, which each
// concrete type supplies itself.
type commonOp struct {
	opType string
	header OpHeader
	ctx    context.Context

	// reply is invoked by Respond with the error the handler supplied. Set
	// by the connection before the op is handed to user code.
	reply replyFunc

	// report is invoked with the outcome of the op for tracing purposes; it
	// may be nil.
	report reqtrace.ReportFunc

	// responded is set atomically the first time Respond is called, so a
	// second call panics instead of silently double-replying.
	responded int32
}

// commonOpSetter is satisfied by every concrete op type via promotion from
// its embedded commonOp; Convert uses it to finish constructing an op
// without a type switch over every kind in this package.
type commonOpSetter interface {
	setCommon(opType string, header OpHeader, ctx context.Context, reply replyFunc, report reqtrace.ReportFunc)
}

func (o *commonOp) setCommon(
	opType string,
	header OpHeader,
	ctx context.Context,
	reply replyFunc,
	report reqtrace.ReportFunc) {
	o.init(opType, header, ctx, reply, report)
}

func (o *commonOp) init(
	opType string,
	header OpHeader,
	ctx context.Context,
	reply replyFunc,
	report reqtrace.ReportFunc) {
	o.opType = opType
	o.header = header
	o.ctx = ctx
	o.reply = reply
	o.report = report
}

func (o *commonOp) Header() OpHeader {
	return o.header
}

func (o *commonOp) Context() context.Context {
	return o.ctx
}

func (o *commonOp) ShortDesc() (desc string) {
	return o.opType
}

func (o *commonOp) Respond(err error) {
	if !atomic.CompareAndSwapInt32(&o.responded, 0, 1) {
		panic(fmt.Sprintf("%s: Respond called more than once", o.opType))
	}

	if o.report != nil {
		o.report(err)
	}

	o.reply(err)
}

// describeOpType strips the package qualifier and "Op" suffix from a
// reflect.Type's name, e.g. "*fuseops.MkDirOp" -> "MkDir".
func describeOpType(t reflect.Type) string {
	s := t.String()
	s = strings.TrimPrefix(s, "*fuseops.")
	s = strings.TrimSuffix(s, "Op")
	return s
}
