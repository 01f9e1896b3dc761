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
	"bytes"
	"context"
	"errors"
	"os"
	"reflect"
	"time"
	"unsafe"

	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
	"github.com/jacobsa/reqtrace"
)

// InterruptOp carries an OpInterrupt message. It is never handed to a
// fuseutil.FileSystem; the connection that calls Convert intercepts it and
// cancels the context of the op it names.
type InterruptOp struct {
	commonOp
	FuseID uint64
}

func (o *InterruptOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	return buffer.OutMessage{}, nil
}

// statFSOp is an all-zero statfs reply that involves no file system. Convert
// does not produce it: OpStatfs is converted to a StatFSOp, which the
// file system answers.
type statFSOp struct {
	commonOp
}

func (o *statFSOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.StatfsOut{})
	b = buffer.NewOutMessage(size)
	b.Grow(size)
	return b, nil
}

func consumeNulName(m *buffer.InMessage) (string, error) {
	buf := m.ConsumeBytes(uintptr(m.Remaining()))
	n := len(buf)
	if n == 0 || buf[n-1] != 0 {
		return "", errors.New("corrupt message: name not NUL-terminated")
	}
	return string(buf[:n-1]), nil
}

func convertFileMode(unixMode uint32) os.FileMode {
	mode := os.FileMode(unixMode & 0777)
	switch unixMode & syscallS_IFMT {
	case syscallS_IFREG:
		// Nothing to add.
	case syscallS_IFDIR:
		mode |= os.ModeDir
	case syscallS_IFLNK:
		mode |= os.ModeSymlink
	case syscallS_IFCHR:
		mode |= os.ModeCharDevice | os.ModeDevice
	case syscallS_IFBLK:
		mode |= os.ModeDevice
	case syscallS_IFIFO:
		mode |= os.ModeNamedPipe
	case syscallS_IFSOCK:
		mode |= os.ModeSocket
	}

	if unixMode&04000 != 0 {
		mode |= os.ModeSetuid
	}
	if unixMode&02000 != 0 {
		mode |= os.ModeSetgid
	}
	if unixMode&01000 != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

// The S_IF* constants from sys/stat.h, spelled out locally so this file
// doesn't need a platform-specific import just to decode a mode word.
const (
	syscallS_IFMT   = 0170000
	syscallS_IFSOCK = 0140000
	syscallS_IFLNK  = 0120000
	syscallS_IFREG  = 0100000
	syscallS_IFBLK  = 0060000
	syscallS_IFDIR  = 0040000
	syscallS_IFCHR  = 0020000
	syscallS_IFIFO  = 0010000
)

func setOutputSlice(dst *[]byte, p unsafe.Pointer, n int) {
	sh := (*reflect.SliceHeader)(unsafe.Pointer(dst))
	sh.Data = uintptr(p)
	sh.Len = n
	sh.Cap = n
}

// Convert decodes the next op out of inMsg, reserving space for its reply in
// outMsg and wiring reply up as the op's completion callback. The caller is
// responsible for arranging for inMsg and outMsg to eventually be recycled.
func Convert(
	header OpHeader,
	ctx context.Context,
	inMsg *buffer.InMessage,
	outMsg *buffer.OutMessage,
	protocol fusekernel.Protocol,
	reply func(error),
	report reqtrace.ReportFunc) (o Op, err error) {
	ih := inMsg.Header()

	switch ih.Opcode {
	case fusekernel.OpLookup:
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &LookUpInodeOp{
			Parent: InodeID(ih.Nodeid),
			Name:   name,
		}

	case fusekernel.OpGetattr:
		o = &GetInodeAttributesOp{Inode: InodeID(ih.Nodeid)}

	case fusekernel.OpSetattr:
		in := (*fusekernel.SetattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.SetattrIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpSetattr")
		}

		to := &SetInodeAttributesOp{Inode: InodeID(ih.Nodeid)}
		o = to

		if in.Valid&fusekernel.SetattrSize != 0 {
			to.Size = &in.Size
		}
		if in.Valid&fusekernel.SetattrMode != 0 {
			mode := convertFileMode(in.Mode)
			to.Mode = &mode
		}
		if in.Valid&fusekernel.SetattrAtime != 0 {
			t := time.Unix(int64(in.Atime), int64(in.AtimeNsec))
			to.Atime = &t
		}
		if in.Valid&fusekernel.SetattrMtime != 0 {
			t := time.Unix(int64(in.Mtime), int64(in.MtimeNsec))
			to.Mtime = &t
		}

	case fusekernel.OpForget:
		in := (*struct{ Nlookup uint64 })(inMsg.Consume(8))
		if in == nil {
			return nil, errors.New("corrupt OpForget")
		}
		o = &ForgetInodeOp{Inode: InodeID(ih.Nodeid), N: in.Nlookup}

	case fusekernel.OpBatchForget:
		type batchForgetIn struct {
			Count uint32
			_     uint32
		}
		in := (*batchForgetIn)(inMsg.Consume(unsafe.Sizeof(batchForgetIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpBatchForget")
		}
		type oneForget struct {
			NodeID  uint64
			Nlookup uint64
		}
		entries := make([]BatchForgetEntry, 0, in.Count)
		for i := uint32(0); i < in.Count; i++ {
			e := (*oneForget)(inMsg.Consume(unsafe.Sizeof(oneForget{})))
			if e == nil {
				return nil, errors.New("corrupt OpBatchForget entry")
			}
			entries = append(entries, BatchForgetEntry{Inode: InodeID(e.NodeID), N: e.Nlookup})
		}
		o = &BatchForgetOp{Entries: entries}

	case fusekernel.OpMkdir:
		in := (*fusekernel.MkdirIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.MkdirIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpMkdir")
		}
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &MkDirOp{
			Parent: InodeID(ih.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode) | os.ModeDir,
		}

	case fusekernel.OpMknod:
		in := (*fusekernel.MknodIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.MknodIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpMknod")
		}
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &MkNodeOp{
			Parent: InodeID(ih.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode),
			Rdev:   in.Rdev,
		}

	case fusekernel.OpCreate:
		in := (*fusekernel.CreateIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.CreateIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpCreate")
		}
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &CreateFileOp{
			Parent: InodeID(ih.Nodeid),
			Name:   name,
			Mode:   convertFileMode(in.Mode),
		}

	case fusekernel.OpSymlink:
		names := inMsg.ConsumeBytes(uintptr(inMsg.Remaining()))
		if len(names) == 0 || names[len(names)-1] != 0 {
			return nil, errors.New("corrupt OpSymlink")
		}
		i := bytes.IndexByte(names, 0)
		if i < 0 {
			return nil, errors.New("corrupt OpSymlink")
		}
		o = &CreateSymlinkOp{
			Parent: InodeID(ih.Nodeid),
			Name:   string(names[:i]),
			Target: string(names[i+1 : len(names)-1]),
		}

	case fusekernel.OpLink:
		in := (*fusekernel.LinkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LinkIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpLink")
		}
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &CreateLinkOp{
			Parent: InodeID(ih.Nodeid),
			Name:   name,
			Target: InodeID(in.Oldnodeid),
		}

	case fusekernel.OpRename, fusekernel.OpRename2:
		var newDir uint64
		var flags RenameFlags
		if ih.Opcode == fusekernel.OpRename2 {
			in := (*fusekernel.Rename2In)(inMsg.Consume(unsafe.Sizeof(fusekernel.Rename2In{})))
			if in == nil {
				return nil, errors.New("corrupt OpRename2")
			}
			newDir = in.Newdir
			flags = RenameFlags(in.Flags)
		} else {
			in := (*fusekernel.RenameIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.RenameIn{})))
			if in == nil {
				return nil, errors.New("corrupt OpRename")
			}
			newDir = in.Newdir
		}

		names := inMsg.ConsumeBytes(uintptr(inMsg.Remaining()))
		if len(names) < 4 || names[len(names)-1] != 0 {
			return nil, errors.New("corrupt OpRename names")
		}
		i := bytes.IndexByte(names, 0)
		if i < 0 {
			return nil, errors.New("corrupt OpRename names")
		}
		o = &RenameOp{
			OldParent: InodeID(ih.Nodeid),
			OldName:   string(names[:i]),
			NewParent: InodeID(newDir),
			NewName:   string(names[i+1 : len(names)-1]),
			Flags:     flags,
		}

	case fusekernel.OpUnlink:
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &UnlinkOp{Parent: InodeID(ih.Nodeid), Name: name}

	case fusekernel.OpRmdir:
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &RmDirOp{Parent: InodeID(ih.Nodeid), Name: name}

	case fusekernel.OpOpen:
		in := (*fusekernel.OpenIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpOpen")
		}
		o = &OpenFileOp{Inode: InodeID(ih.Nodeid)}

	case fusekernel.OpOpendir:
		in := (*fusekernel.OpenIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpOpendir")
		}
		o = &OpenDirOp{Inode: InodeID(ih.Nodeid)}

	case fusekernel.OpRead:
		in := (*fusekernel.ReadIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReadIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpRead")
		}
		to := &ReadFileOp{
			Inode:  InodeID(ih.Nodeid),
			Handle: HandleID(in.Fh),
			Offset: int64(in.Offset),
		}
		o = to

		readSize := int(in.Size)
		p := outMsg.GrowNoZero(uintptr(readSize))
		if p == nil {
			return nil, errors.New("can't grow out message for read")
		}
		setOutputSlice(&to.Dst, p, readSize)

	case fusekernel.OpReaddir, fusekernel.OpReaddirplus:
		in := (*fusekernel.ReadIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReadIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpReaddir")
		}

		readSize := int(in.Size)
		p := outMsg.GrowNoZero(uintptr(readSize))
		if p == nil {
			return nil, errors.New("can't grow out message for readdir")
		}

		if ih.Opcode == fusekernel.OpReaddirplus {
			to := &ReadDirPlusOp{
				Inode:  InodeID(ih.Nodeid),
				Handle: HandleID(in.Fh),
				Offset: DirOffset(in.Offset),
			}
			setOutputSlice(&to.Dst, p, readSize)
			o = to
		} else {
			to := &ReadDirOp{
				Inode:  InodeID(ih.Nodeid),
				Handle: HandleID(in.Fh),
				Offset: DirOffset(in.Offset),
			}
			setOutputSlice(&to.Dst, p, readSize)
			o = to
		}

	case fusekernel.OpRelease:
		in := (*fusekernel.ReleaseIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpRelease")
		}
		o = &ReleaseFileHandleOp{Handle: HandleID(in.Fh)}

	case fusekernel.OpReleasedir:
		in := (*fusekernel.ReleaseIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpReleasedir")
		}
		o = &ReleaseDirHandleOp{Handle: HandleID(in.Fh)}

	case fusekernel.OpWrite:
		in := (*fusekernel.WriteIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.WriteIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpWrite")
		}
		buf := inMsg.ConsumeBytes(uintptr(inMsg.Remaining()))
		if len(buf) < int(in.Size) {
			return nil, errors.New("corrupt OpWrite payload")
		}
		o = &WriteFileOp{
			Inode:  InodeID(ih.Nodeid),
			Handle: HandleID(in.Fh),
			Data:   buf[:in.Size],
			Offset: int64(in.Offset),
		}

	case fusekernel.OpFsync, fusekernel.OpFsyncdir:
		in := (*fusekernel.FsyncIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FsyncIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpFsync")
		}
		o = &SyncFileOp{
			Inode:    InodeID(ih.Nodeid),
			Handle:   HandleID(in.Fh),
			Dir:      ih.Opcode == fusekernel.OpFsyncdir,
			DataOnly: fusekernel.FsyncFlags(in.FsyncFlags)&fusekernel.FsyncFDataSync != 0,
		}

	case fusekernel.OpFlush:
		in := (*fusekernel.FlushIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FlushIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpFlush")
		}
		o = &FlushFileOp{Inode: InodeID(ih.Nodeid), Handle: HandleID(in.Fh)}

	case fusekernel.OpReadlink:
		o = &ReadSymlinkOp{Inode: InodeID(ih.Nodeid)}

	case fusekernel.OpStatfs:
		o = &StatFSOp{}

	case fusekernel.OpAccess:
		in := (*fusekernel.AccessIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.AccessIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpAccess")
		}
		o = &AccessOp{Inode: InodeID(ih.Nodeid), Mask: in.Mask}

	case fusekernel.OpInterrupt:
		in := (*fusekernel.InterruptIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.InterruptIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpInterrupt")
		}
		o = &InterruptOp{FuseID: in.Unique}

	case fusekernel.OpInit:
		in := (*fusekernel.InitIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.InitIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpInit")
		}
		o = &InitOp{
			Kernel:       fusekernel.Protocol{Major: in.Major, Minor: in.Minor},
			MaxReadahead: in.MaxReadahead,
			Flags:        fusekernel.InitFlags(in.Flags),
		}

	case fusekernel.OpGetxattr:
		in := (*fusekernel.GetxattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpGetxattr")
		}
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		to := &GetXattrOp{Inode: InodeID(ih.Nodeid), Name: name}
		if in.Size > 0 {
			p := outMsg.GrowNoZero(uintptr(in.Size))
			if p == nil {
				return nil, errors.New("can't grow out message for getxattr")
			}
			setOutputSlice(&to.Dst, p, int(in.Size))
		}
		o = to

	case fusekernel.OpListxattr:
		in := (*fusekernel.GetxattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpListxattr")
		}
		to := &ListXattrOp{Inode: InodeID(ih.Nodeid)}
		if in.Size > 0 {
			p := outMsg.GrowNoZero(uintptr(in.Size))
			if p == nil {
				return nil, errors.New("can't grow out message for listxattr")
			}
			setOutputSlice(&to.Dst, p, int(in.Size))
		}
		o = to

	case fusekernel.OpSetxattr:
		in := (*fusekernel.SetxattrIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.SetxattrIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpSetxattr")
		}
		rest := inMsg.ConsumeBytes(uintptr(inMsg.Remaining()))
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return nil, errors.New("corrupt OpSetxattr name")
		}
		name := string(rest[:i])
		value := rest[i+1:]
		if len(value) < int(in.Size) {
			return nil, errors.New("corrupt OpSetxattr value")
		}
		o = &SetXattrOp{
			Inode: InodeID(ih.Nodeid),
			Name:  name,
			Value: value[:in.Size],
			Flags: XattrFlag(in.Flags),
		}

	case fusekernel.OpRemovexattr:
		name, e := consumeNulName(inMsg)
		if e != nil {
			return nil, e
		}
		o = &RemoveXattrOp{Inode: InodeID(ih.Nodeid), Name: name}

	case fusekernel.OpGetlk:
		in := (*fusekernel.LkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LkIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpGetlk")
		}
		o = &GetLkOp{
			Inode:  InodeID(ih.Nodeid),
			Handle: HandleID(in.Fh),
			Lock:   FileLock{Type: FileLockType(in.Lk.Type), Start: in.Lk.Start, End: in.Lk.End, Pid: in.Lk.Pid},
		}

	case fusekernel.OpSetlk, fusekernel.OpSetlkw:
		in := (*fusekernel.LkIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LkIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpSetlk")
		}
		lock := FileLock{Type: FileLockType(in.Lk.Type), Start: in.Lk.Start, End: in.Lk.End, Pid: in.Lk.Pid}
		block := ih.Opcode == fusekernel.OpSetlkw
		if in.LkFlags&uint32(fusekernel.LkFlock) != 0 {
			o = &FlockOp{Inode: InodeID(ih.Nodeid), Handle: HandleID(in.Fh), Lock: lock, Block: block}
		} else {
			o = &SetLkOp{Inode: InodeID(ih.Nodeid), Handle: HandleID(in.Fh), Lock: lock, Block: block}
		}

	case fusekernel.OpFallocate:
		in := (*fusekernel.FallocateIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.FallocateIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpFallocate")
		}
		o = &FallocateOp{
			Inode:  InodeID(ih.Nodeid),
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Length: in.Length,
			Mode:   in.Mode,
		}

	case fusekernel.OpLseek:
		in := (*fusekernel.LseekIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.LseekIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpLseek")
		}
		o = &LSeekOp{
			Inode:  InodeID(ih.Nodeid),
			Handle: HandleID(in.Fh),
			Offset: int64(in.Offset),
			Whence: SeekWhence(in.Whence),
		}

	case fusekernel.OpCopyFileRange:
		in := (*fusekernel.CopyFileRangeIn)(inMsg.Consume(unsafe.Sizeof(fusekernel.CopyFileRangeIn{})))
		if in == nil {
			return nil, errors.New("corrupt OpCopyFileRange")
		}
		o = &CopyFileRangeOp{
			InInode:   InodeID(ih.Nodeid),
			InHandle:  HandleID(in.FhIn),
			InOffset:  int64(in.OffIn),
			OutInode:  InodeID(in.NodeidOut),
			OutHandle: HandleID(in.FhOut),
			OutOffset: int64(in.OffOut),
			Length:    in.Len,
		}

	default:
		o = &UnknownOp{OpCode: uint32(ih.Opcode), Inode: InodeID(ih.Nodeid)}
	}

	opType := describeOpType(reflect.TypeOf(o))
	o.(commonOpSetter).setCommon(opType, header, ctx, reply, report)

	return o, nil
}
