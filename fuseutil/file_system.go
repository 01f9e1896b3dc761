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

package fuseutil

import (
	"context"
	"flag"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/writequeue"
)

var fRandomDelays = flag.Bool(
	"fuseutil.random_delays", false,
	"If set, randomly delay each op received, to help expose concurrency issues.")

// An interface with a method for each op type in the fuseops package. This can
// be used in conjunction with NewFileSystemServer to avoid writing a "dispatch
// loop" that switches on op types, instead receiving typed method calls
// directly.
//
// Each method is responsible for calling Respond on the supplied op.
//
// See NotImplementedFileSystem for a convenient way to embed default
// implementations for methods you don't care about.
type FileSystem interface {
	Init(*fuseops.InitOp)
	LookUpInode(*fuseops.LookUpInodeOp)
	GetInodeAttributes(*fuseops.GetInodeAttributesOp)
	SetInodeAttributes(*fuseops.SetInodeAttributesOp)
	ForgetInode(*fuseops.ForgetInodeOp)
	BatchForgetInode(*fuseops.BatchForgetOp)
	MkDir(*fuseops.MkDirOp)
	MkNode(*fuseops.MkNodeOp)
	CreateFile(*fuseops.CreateFileOp)
	CreateSymlink(*fuseops.CreateSymlinkOp)
	CreateLink(*fuseops.CreateLinkOp)
	Rename(*fuseops.RenameOp)
	RmDir(*fuseops.RmDirOp)
	Unlink(*fuseops.UnlinkOp)
	OpenDir(*fuseops.OpenDirOp)
	ReadDir(*fuseops.ReadDirOp)
	ReadDirPlus(*fuseops.ReadDirPlusOp)
	ReleaseDirHandle(*fuseops.ReleaseDirHandleOp)
	OpenFile(*fuseops.OpenFileOp)
	ReadFile(*fuseops.ReadFileOp)
	WriteFile(*fuseops.WriteFileOp)
	SyncFile(*fuseops.SyncFileOp)
	FlushFile(*fuseops.FlushFileOp)
	ReleaseFileHandle(*fuseops.ReleaseFileHandleOp)
	ReadSymlink(*fuseops.ReadSymlinkOp)
	StatFS(*fuseops.StatFSOp)
	Access(*fuseops.AccessOp)
	GetXattr(*fuseops.GetXattrOp)
	ListXattr(*fuseops.ListXattrOp)
	SetXattr(*fuseops.SetXattrOp)
	RemoveXattr(*fuseops.RemoveXattrOp)
	GetLk(*fuseops.GetLkOp)
	SetLk(*fuseops.SetLkOp)
	Flock(*fuseops.FlockOp)
	Fallocate(*fuseops.FallocateOp)
	LSeek(*fuseops.LSeekOp)
	CopyFileRange(*fuseops.CopyFileRangeOp)
}

// Create a fuse.Server that handles ops by calling the associated FileSystem
// method.Respond with the resulting error. Unsupported ops are responded to
// directly with ENOSYS.
//
// Every op read from the connection is handed to a fuse.Dispatcher, which
// runs it on a bounded worker pool instead of the one-goroutine-per-op the
// kernel technically allows (cf. http://goo.gl/jnkHPO, fuse-devel thread
// "Fuse guarantees on concurrent requests"). WriteFileOp is the one
// exception: it's routed through a per-handle writequeue.Queue first, so
// concurrent writes to the same open file are serialized instead of racing
// in fs.WriteFile.
func NewFileSystemServer(fs FileSystem) fuse.Server {
	return NewFileSystemServerWithOptions(
		fs,
		fuse.DispatcherOptions{WorkerThreads: 8, PriorityOrdering: true},
		writequeue.Config{DefaultMaxQueueSize: 256})
}

// NewFileSystemServerWithOptions is NewFileSystemServer with explicit
// control over the dispatcher's worker pool and the per-handle write queue.
func NewFileSystemServerWithOptions(
	fs FileSystem,
	dispatcherOpts fuse.DispatcherOptions,
	wqCfg writequeue.Config) fuse.Server {
	s := fileSystemServer{
		fs:         fs,
		dispatcher: fuse.NewDispatcher(),
		wq:         writequeue.New(wqCfg, nil),
	}
	s.registerHandlers()

	if err := s.dispatcher.Initialize(dispatcherOpts); err != nil {
		panic(err)
	}
	go s.wq.Run(s.execWrite)

	return s
}

// A convenience function that makes it easy to ensure you respond to an
// operation when a FileSystem method returns. Responds to op with the current
// value of *err.
//
// For example:
//
//     func (fs *myFS) ReadFile(op *fuseops.ReadFileOp) {
//       var err error
//       defer fuseutil.RespondToOp(op, &err)
//
//       if err = fs.frobnicate(); err != nil {
//         err = fmt.Errorf("frobnicate: %v", err)
//         return
//       }
//
//       // Lots more manipulation of err, and return paths.
//       // [...]
//     }
//
func RespondToOp(op fuseops.Op, err *error) {
	op.Respond(*err)
}

type fileSystemServer struct {
	fs         FileSystem
	dispatcher *fuse.Dispatcher
	wq         *writequeue.Queue
}

// writeFileOpName is the op name WriteFileOp is registered and dispatched
// under; it never goes through the generic method-call handlers below
// because it has to pass through s.wq first.
const writeFileOpName = "WriteFile"

func (s fileSystemServer) ServeOps(c *fuse.Connection) {
	for {
		op, err := c.ReadOp()
		if err == io.EOF {
			break
		}

		if err != nil {
			panic(err)
		}

		// Delay if requested, to help expose concurrency issues.
		if *fRandomDelays {
			const delayLimit = 100 * time.Microsecond
			delay := time.Duration(rand.Int63n(int64(delayLimit)))
			time.Sleep(delay)
		}

		name := opName(op)
		if name == "" {
			op.Respond(fuse.ENOSYS)
			continue
		}

		if _, err := s.dispatcher.Dispatch(op.Context(), name, op, fuse.PriorityNormal, noopPost); err != nil {
			// Dispatch failed before the op ever reached a handler, so no
			// one else will respond to it.
			op.Respond(err)
		}
	}
}

func noopPost(interface{}, error) {}

// Drain satisfies the drain hook Mount looks for on a Server: it shuts down
// both the dispatcher and the write queue and reports whether both drained
// within timeout.
func (s fileSystemServer) Drain(timeout time.Duration) bool {
	var wg sync.WaitGroup
	results := make([]bool, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = s.dispatcher.Shutdown(timeout)
	}()
	go func() {
		defer wg.Done()
		results[1] = s.wq.Shutdown(timeout)
	}()
	wg.Wait()

	return results[0] && results[1]
}

// execWrite is the writequeue.Executor that actually calls fs.WriteFile,
// once the write queue has decided it's this fd's turn. token is always the
// *fuseops.WriteFileOp itself, which is responsible for calling Respond.
func (s fileSystemServer) execWrite(fd int, offset int64, data []byte, token interface{}) int32 {
	s.fs.WriteFile(token.(*fuseops.WriteFileOp))
	return 0
}

// registerHandlers binds one Handler per op type to s.dispatcher. Every op
// but WriteFileOp just calls straight through to the matching FileSystem
// method, which is responsible for calling op.Respond itself; the
// dispatcher's own post callback is unused (see noopPost).
func (s fileSystemServer) registerHandlers() {
	reg := func(name string, call func(op fuseops.Op)) {
		err := s.dispatcher.RegisterHandler(name, func(ctx context.Context, args interface{}) (interface{}, error) {
			call(args.(fuseops.Op))
			return nil, nil
		})
		if err != nil {
			panic(err)
		}
	}

	reg("Init", func(op fuseops.Op) { s.fs.Init(op.(*fuseops.InitOp)) })
	reg("LookUpInode", func(op fuseops.Op) { s.fs.LookUpInode(op.(*fuseops.LookUpInodeOp)) })
	reg("GetInodeAttributes", func(op fuseops.Op) { s.fs.GetInodeAttributes(op.(*fuseops.GetInodeAttributesOp)) })
	reg("SetInodeAttributes", func(op fuseops.Op) { s.fs.SetInodeAttributes(op.(*fuseops.SetInodeAttributesOp)) })
	reg("ForgetInode", func(op fuseops.Op) { s.fs.ForgetInode(op.(*fuseops.ForgetInodeOp)) })
	reg("BatchForgetInode", func(op fuseops.Op) { s.fs.BatchForgetInode(op.(*fuseops.BatchForgetOp)) })
	reg("MkDir", func(op fuseops.Op) { s.fs.MkDir(op.(*fuseops.MkDirOp)) })
	reg("MkNode", func(op fuseops.Op) { s.fs.MkNode(op.(*fuseops.MkNodeOp)) })
	reg("CreateFile", func(op fuseops.Op) { s.fs.CreateFile(op.(*fuseops.CreateFileOp)) })
	reg("CreateSymlink", func(op fuseops.Op) { s.fs.CreateSymlink(op.(*fuseops.CreateSymlinkOp)) })
	reg("CreateLink", func(op fuseops.Op) { s.fs.CreateLink(op.(*fuseops.CreateLinkOp)) })
	reg("Rename", func(op fuseops.Op) { s.fs.Rename(op.(*fuseops.RenameOp)) })
	reg("RmDir", func(op fuseops.Op) { s.fs.RmDir(op.(*fuseops.RmDirOp)) })
	reg("Unlink", func(op fuseops.Op) { s.fs.Unlink(op.(*fuseops.UnlinkOp)) })
	reg("OpenDir", func(op fuseops.Op) { s.fs.OpenDir(op.(*fuseops.OpenDirOp)) })
	reg("ReadDir", func(op fuseops.Op) { s.fs.ReadDir(op.(*fuseops.ReadDirOp)) })
	reg("ReadDirPlus", func(op fuseops.Op) { s.fs.ReadDirPlus(op.(*fuseops.ReadDirPlusOp)) })
	reg("ReleaseDirHandle", func(op fuseops.Op) { s.fs.ReleaseDirHandle(op.(*fuseops.ReleaseDirHandleOp)) })
	reg("OpenFile", func(op fuseops.Op) { s.fs.OpenFile(op.(*fuseops.OpenFileOp)) })
	reg("ReadFile", func(op fuseops.Op) { s.fs.ReadFile(op.(*fuseops.ReadFileOp)) })
	reg("SyncFile", func(op fuseops.Op) { s.fs.SyncFile(op.(*fuseops.SyncFileOp)) })
	reg("FlushFile", func(op fuseops.Op) { s.fs.FlushFile(op.(*fuseops.FlushFileOp)) })
	reg("ReleaseFileHandle", func(op fuseops.Op) { s.fs.ReleaseFileHandle(op.(*fuseops.ReleaseFileHandleOp)) })
	reg("ReadSymlink", func(op fuseops.Op) { s.fs.ReadSymlink(op.(*fuseops.ReadSymlinkOp)) })
	reg("StatFS", func(op fuseops.Op) { s.fs.StatFS(op.(*fuseops.StatFSOp)) })
	reg("Access", func(op fuseops.Op) { s.fs.Access(op.(*fuseops.AccessOp)) })
	reg("GetXattr", func(op fuseops.Op) { s.fs.GetXattr(op.(*fuseops.GetXattrOp)) })
	reg("ListXattr", func(op fuseops.Op) { s.fs.ListXattr(op.(*fuseops.ListXattrOp)) })
	reg("SetXattr", func(op fuseops.Op) { s.fs.SetXattr(op.(*fuseops.SetXattrOp)) })
	reg("RemoveXattr", func(op fuseops.Op) { s.fs.RemoveXattr(op.(*fuseops.RemoveXattrOp)) })
	reg("GetLk", func(op fuseops.Op) { s.fs.GetLk(op.(*fuseops.GetLkOp)) })
	reg("SetLk", func(op fuseops.Op) { s.fs.SetLk(op.(*fuseops.SetLkOp)) })
	reg("Flock", func(op fuseops.Op) { s.fs.Flock(op.(*fuseops.FlockOp)) })
	reg("Fallocate", func(op fuseops.Op) { s.fs.Fallocate(op.(*fuseops.FallocateOp)) })
	reg("LSeek", func(op fuseops.Op) { s.fs.LSeek(op.(*fuseops.LSeekOp)) })
	reg("CopyFileRange", func(op fuseops.Op) { s.fs.CopyFileRange(op.(*fuseops.CopyFileRangeOp)) })

	if err := s.dispatcher.RegisterHandler(writeFileOpName, s.dispatchWrite); err != nil {
		panic(err)
	}
}

// dispatchWrite is WriteFileOp's Handler. Instead of calling fs.WriteFile
// directly, it hands the write to s.wq so concurrent writes to the same
// handle serialize instead of racing; s.execWrite does the actual
// fs.WriteFile call once the queue admits it.
func (s fileSystemServer) dispatchWrite(ctx context.Context, args interface{}) (interface{}, error) {
	op := args.(*fuseops.WriteFileOp)

	id := s.wq.Enqueue(
		int(op.Handle),
		op.Offset,
		len(op.Data),
		op.Data,
		writequeue.PriorityNormal,
		op,
		nil)
	if id == 0 {
		op.Respond(fuse.EAGAIN)
	}

	return nil, nil
}

// opName returns the name WriteFileOp and the rest of the op types are
// registered under in registerHandlers, or "" for a type nothing handles.
func opName(op fuseops.Op) string {
	switch op.(type) {
	case *fuseops.InitOp:
		return "Init"
	case *fuseops.LookUpInodeOp:
		return "LookUpInode"
	case *fuseops.GetInodeAttributesOp:
		return "GetInodeAttributes"
	case *fuseops.SetInodeAttributesOp:
		return "SetInodeAttributes"
	case *fuseops.ForgetInodeOp:
		return "ForgetInode"
	case *fuseops.BatchForgetOp:
		return "BatchForgetInode"
	case *fuseops.MkDirOp:
		return "MkDir"
	case *fuseops.MkNodeOp:
		return "MkNode"
	case *fuseops.CreateFileOp:
		return "CreateFile"
	case *fuseops.CreateSymlinkOp:
		return "CreateSymlink"
	case *fuseops.CreateLinkOp:
		return "CreateLink"
	case *fuseops.RenameOp:
		return "Rename"
	case *fuseops.RmDirOp:
		return "RmDir"
	case *fuseops.UnlinkOp:
		return "Unlink"
	case *fuseops.OpenDirOp:
		return "OpenDir"
	case *fuseops.ReadDirOp:
		return "ReadDir"
	case *fuseops.ReadDirPlusOp:
		return "ReadDirPlus"
	case *fuseops.ReleaseDirHandleOp:
		return "ReleaseDirHandle"
	case *fuseops.OpenFileOp:
		return "OpenFile"
	case *fuseops.ReadFileOp:
		return "ReadFile"
	case *fuseops.WriteFileOp:
		return writeFileOpName
	case *fuseops.SyncFileOp:
		return "SyncFile"
	case *fuseops.FlushFileOp:
		return "FlushFile"
	case *fuseops.ReleaseFileHandleOp:
		return "ReleaseFileHandle"
	case *fuseops.ReadSymlinkOp:
		return "ReadSymlink"
	case *fuseops.StatFSOp:
		return "StatFS"
	case *fuseops.AccessOp:
		return "Access"
	case *fuseops.GetXattrOp:
		return "GetXattr"
	case *fuseops.ListXattrOp:
		return "ListXattr"
	case *fuseops.SetXattrOp:
		return "SetXattr"
	case *fuseops.RemoveXattrOp:
		return "RemoveXattr"
	case *fuseops.GetLkOp:
		return "GetLk"
	case *fuseops.SetLkOp:
		return "SetLk"
	case *fuseops.FlockOp:
		return "Flock"
	case *fuseops.FallocateOp:
		return "Fallocate"
	case *fuseops.LSeekOp:
		return "LSeek"
	case *fuseops.CopyFileRangeOp:
		return "CopyFileRange"
	default:
		return ""
	}
}
