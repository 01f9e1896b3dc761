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

// Package fuseops contains the request/response types for every operation a
// fuse.Connection may hand to a fuseutil.FileSystem, along with the
// wire-level serialization of each successful response. See the
// documentation on the fuse package for the broader picture.
package fuseops

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/jacobsa/fuse/internal/buffer"
	"github.com/jacobsa/fuse/internal/fusekernel"
)

////////////////////////////////////////////////////////////////////////
// Mount lifecycle
////////////////////////////////////////////////////////////////////////

// InitOp is sent once when mounting the file system. It must succeed in
// order for the mount to succeed.
type InitOp struct {
	commonOp

	// In.
	Kernel fusekernel.Protocol

	// Out. The file system may lower these from the library's defaults but
	// never raise them.
	Library      fusekernel.Protocol
	MaxReadahead uint32
	Flags        fusekernel.InitFlags
	MaxWrite     uint32
}

func (o *InitOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(unsafe.Sizeof(fusekernel.InitOut{}))
	out := (*fusekernel.InitOut)(b.Grow(unsafe.Sizeof(fusekernel.InitOut{})))
	out.Major = o.Library.Major
	out.Minor = o.Library.Minor
	out.MaxReadahead = o.MaxReadahead
	out.Flags = o.Flags
	out.MaxWrite = o.MaxWrite
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

// LookUpInodeOp looks up a child by name within a parent directory. The
// kernel sends this when resolving user paths to dentry structs, which are
// then cached.
type LookUpInodeOp struct {
	commonOp

	Parent InodeID
	Name   string

	Entry ChildInodeEntry
}

func (o *LookUpInodeOp) ShortDesc() string {
	return fmt.Sprintf("LookUpInode(parent=%v, name=%q)", o.Parent, o.Name)
}

func (o *LookUpInodeOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.EntryOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.EntryOut)(b.Grow(size))
	convertChildInodeEntry(&o.Entry, out)
	return b, nil
}

// GetInodeAttributesOp fetches attributes for an inode, as in stat(2).
type GetInodeAttributesOp struct {
	commonOp

	Inode InodeID

	Attributes           InodeAttributes
	AttributesExpiration time.Time
}

func (o *GetInodeAttributesOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.AttrOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.AttrOut)(b.Grow(size))
	out.AttrValid, out.AttrValidNsec = convertExpirationTime(o.AttributesExpiration)
	convertAttributes(o.Inode, &o.Attributes, &out.Attr)
	return b, nil
}

// SetInodeAttributesOp changes attributes for an inode, as in setattr(2)
// (chmod/chown/truncate/utimes all funnel through here).
type SetInodeAttributesOp struct {
	commonOp

	Inode InodeID

	Size  *uint64
	Mode  *os.FileMode
	Atime *time.Time
	Mtime *time.Time

	Attributes           InodeAttributes
	AttributesExpiration time.Time
}

func (o *SetInodeAttributesOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.AttrOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.AttrOut)(b.Grow(size))
	out.AttrValid, out.AttrValidNsec = convertExpirationTime(o.AttributesExpiration)
	convertAttributes(o.Inode, &o.Attributes, &out.Attr)
	return b, nil
}

// ForgetInodeOp tells the file system that the kernel has dropped its last
// reference to an inode's lookup count. No reply is sent.
type ForgetInodeOp struct {
	commonOp

	Inode InodeID
	N     uint64
}

func (o *ForgetInodeOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	return buffer.OutMessage{}, nil
}

// BatchForgetEntry is one entry of a BatchForgetOp.
type BatchForgetEntry struct {
	Inode InodeID
	N     uint64
}

// BatchForgetOp is the batched form of ForgetInodeOp (kernel opcode
// BATCH_FORGET), used when many inodes are evicted from the dentry cache at
// once. No reply is sent.
type BatchForgetOp struct {
	commonOp

	Entries []BatchForgetEntry
}

func (o *BatchForgetOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	return buffer.OutMessage{}, nil
}

////////////////////////////////////////////////////////////////////////
// Inode creation
////////////////////////////////////////////////////////////////////////

// MkDirOp creates a new directory.
type MkDirOp struct {
	commonOp

	Parent InodeID
	Name   string
	Mode   os.FileMode

	Entry ChildInodeEntry
}

func (o *MkDirOp) ShortDesc() string {
	return fmt.Sprintf("MkDir(parent=%v, name=%q)", o.Parent, o.Name)
}

func (o *MkDirOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.EntryOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.EntryOut)(b.Grow(size))
	convertChildInodeEntry(&o.Entry, out)
	return b, nil
}

// MkNodeOp creates a non-directory, non-symlink node (device node, FIFO, or
// socket), as in mknod(2).
type MkNodeOp struct {
	commonOp

	Parent InodeID
	Name   string
	Mode   os.FileMode
	Rdev   uint32

	Entry ChildInodeEntry
}

func (o *MkNodeOp) ShortDesc() string {
	return fmt.Sprintf("MkNode(parent=%v, name=%q)", o.Parent, o.Name)
}

func (o *MkNodeOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.EntryOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.EntryOut)(b.Grow(size))
	convertChildInodeEntry(&o.Entry, out)
	return b, nil
}

// CreateFileOp creates a file and opens it, as in creat(2).
type CreateFileOp struct {
	commonOp

	Parent InodeID
	Name   string
	Mode   os.FileMode

	Entry  ChildInodeEntry
	Handle HandleID
}

func (o *CreateFileOp) ShortDesc() string {
	return fmt.Sprintf("CreateFile(parent=%v, name=%q)", o.Parent, o.Name)
}

func (o *CreateFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	eSize := fusekernel.EntryOutSize(protocol)
	oSize := unsafe.Sizeof(fusekernel.OpenOut{})
	b = buffer.NewOutMessage(eSize + oSize)

	e := (*fusekernel.EntryOut)(b.Grow(eSize))
	convertChildInodeEntry(&o.Entry, e)

	oo := (*fusekernel.OpenOut)(b.Grow(oSize))
	oo.Fh = uint64(o.Handle)

	return b, nil
}

// CreateSymlinkOp creates a symlink, as in symlink(2).
type CreateSymlinkOp struct {
	commonOp

	Parent InodeID
	Name   string
	Target string

	Entry ChildInodeEntry
}

func (o *CreateSymlinkOp) ShortDesc() string {
	return fmt.Sprintf(
		"CreateSymlink(parent=%v, name=%q, target=%q)",
		o.Parent, o.Name, o.Target)
}

func (o *CreateSymlinkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.EntryOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.EntryOut)(b.Grow(size))
	convertChildInodeEntry(&o.Entry, out)
	return b, nil
}

// CreateLinkOp creates a hard link, as in link(2).
type CreateLinkOp struct {
	commonOp

	Parent InodeID
	Name   string
	Target InodeID

	Entry ChildInodeEntry
}

func (o *CreateLinkOp) ShortDesc() string {
	return fmt.Sprintf(
		"CreateLink(parent=%v, name=%q, target=%v)",
		o.Parent, o.Name, o.Target)
}

func (o *CreateLinkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := fusekernel.EntryOutSize(protocol)
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.EntryOut)(b.Grow(size))
	convertChildInodeEntry(&o.Entry, out)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Unlinking / renaming
////////////////////////////////////////////////////////////////////////

// RenameOp renames (and optionally atomically exchanges) a directory entry.
type RenameOp struct {
	commonOp

	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string
	Flags     RenameFlags
}

func (o *RenameOp) ShortDesc() string {
	return fmt.Sprintf(
		"Rename(old=(%v,%q), new=(%v,%q))",
		o.OldParent, o.OldName, o.NewParent, o.NewName)
}

func (o *RenameOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// RmDirOp removes an empty directory entry.
type RmDirOp struct {
	commonOp

	Parent InodeID
	Name   string
}

func (o *RmDirOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// UnlinkOp removes a non-directory directory entry.
type UnlinkOp struct {
	commonOp

	Parent InodeID
	Name   string
}

func (o *UnlinkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

// OpenDirOp opens a directory inode for subsequent ReadDirOp calls.
type OpenDirOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
}

func (o *OpenDirOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.OpenOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.OpenOut)(b.Grow(size))
	out.Fh = uint64(o.Handle)
	return b, nil
}

// ReadDirOp reads entries from an open directory handle, as in getdents(2).
type ReadDirOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Offset DirOffset
	Dst    []byte

	// Data is the serialized fuseops.Dirent entries (via
	// fuseutil.WriteDirent) that fit within len(Dst); set by the handler.
	Data []byte
}

func (o *ReadDirOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(uintptr(len(o.Data)))
	b.Append(o.Data)
	return b, nil
}

// ReadDirPlusOp is the combined readdir+lookup form (kernel opcode
// READDIRPLUS), letting the kernel populate its dentry/inode caches in one
// round trip.
type ReadDirPlusOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Offset DirOffset
	Dst    []byte

	Entries []ChildInodeEntryWithName
	Data    []byte
}

// ChildInodeEntryWithName pairs a directory entry name with the resolved
// entry, for ReadDirPlusOp.
type ChildInodeEntryWithName struct {
	Name  string
	Entry ChildInodeEntry
}

func (o *ReadDirPlusOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(uintptr(len(o.Data)))
	b.Append(o.Data)
	return b, nil
}

// ReleaseDirHandleOp releases a previously-opened directory handle.
type ReleaseDirHandleOp struct {
	commonOp

	Handle HandleID
}

func (o *ReleaseDirHandleOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

// OpenFileOp opens a file inode for subsequent read/write, as in open(2).
type OpenFileOp struct {
	commonOp

	Inode         InodeID
	Handle        HandleID
	KeepPageCache bool
	UseDirectIO   bool
}

func (o *OpenFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.OpenOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.OpenOut)(b.Grow(size))
	out.Fh = uint64(o.Handle)

	if o.KeepPageCache {
		out.OpenFlags |= fusekernel.OpenKeepCache
	}
	if o.UseDirectIO {
		out.OpenFlags |= fusekernel.OpenDirectIO
	}

	return b, nil
}

// ReadFileOp reads data from an open file handle, as in pread(2).
type ReadFileOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Offset int64
	Dst    []byte

	// Data is set by the handler, either as a reference into Dst or into
	// its own backing store; its length is what was actually read.
	Data []byte

	// BytesRead mirrors len(Data) for handlers that prefer reporting a
	// count over slicing Dst themselves.
	BytesRead int
}

func (o *ReadFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	data := o.Data
	if data == nil && o.BytesRead > 0 {
		data = o.Dst[:o.BytesRead]
	}
	b = buffer.NewOutMessage(uintptr(len(data)))
	b.Append(data)
	return b, nil
}

// WriteFileOp writes data to an open file handle, as in pwrite(2).
type WriteFileOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Data   []byte
	Offset int64
}

func (o *WriteFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.WriteOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.WriteOut)(b.Grow(size))
	out.Size = uint32(len(o.Data))
	return b, nil
}

// SyncFileOp flushes cached data for an inode to its backing store, as in
// fsync(2)/fsyncdir(2). Dir distinguishes which opcode triggered it;
// DataOnly mirrors the O_DSYNC-style "skip metadata" flag.
type SyncFileOp struct {
	commonOp

	Inode    InodeID
	Handle   HandleID
	Dir      bool
	DataOnly bool
}

func (o *SyncFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// FlushFileOp is sent on each close(2) of a file descriptor referring to an
// open file handle (which may be more than once per handle, if it was
// dup'd).
type FlushFileOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
}

func (o *FlushFileOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// ReleaseFileHandleOp releases a previously-opened file handle, once the
// last open file descriptor referring to it is closed.
type ReleaseFileHandleOp struct {
	commonOp

	Handle HandleID
}

func (o *ReleaseFileHandleOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Symlinks
////////////////////////////////////////////////////////////////////////

// ReadSymlinkOp reads the target of a symlink, as in readlink(2).
type ReadSymlinkOp struct {
	commonOp

	Inode  InodeID
	Target string
}

func (o *ReadSymlinkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(uintptr(len(o.Target)))
	b.AppendString(o.Target)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// File system metadata
////////////////////////////////////////////////////////////////////////

// StatFSOp reports file system-wide metadata, as in statvfs(2).
type StatFSOp struct {
	commonOp

	Info StatfsInfo
}

func (o *StatFSOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.StatfsOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.StatfsOut)(b.Grow(size))

	out.Bsize = o.Info.BlockSize
	out.Blocks = o.Info.Blocks
	out.Bfree = o.Info.BlocksFree
	out.Bavail = o.Info.BlocksAvailable
	out.Frsize = o.Info.IoSize
	out.Files = o.Info.Inodes
	out.Ffree = o.Info.InodesFree
	out.Namelen = 255

	return b, nil
}

// AccessOp checks permission bits, as in access(2).
type AccessOp struct {
	commonOp

	Inode InodeID
	Mask  uint32
}

func (o *AccessOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

// GetXattrOp reads an extended attribute's value, as in getxattr(2). When
// Dst is empty the caller wants only the value's size: the handler sets
// BytesNeeded, which is sent back in place of the value. If the value does
// not fit in a non-empty Dst, the handler itself responds with ERANGE.
type GetXattrOp struct {
	commonOp

	Inode       InodeID
	Name        string
	Dst         []byte
	BytesNeeded uint32

	// Data is the attribute value, up to len(Dst) bytes. Left nil when Dst
	// was empty and the caller only wanted the size.
	Data []byte
}

func (o *GetXattrOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	if len(o.Dst) == 0 {
		size := unsafe.Sizeof(fusekernel.GetxattrOut{})
		b = buffer.NewOutMessage(size)
		out := (*fusekernel.GetxattrOut)(b.Grow(size))
		out.Size = o.BytesNeeded
		return b, nil
	}

	b = buffer.NewOutMessage(uintptr(len(o.Data)))
	b.Append(o.Data)
	return b, nil
}

// ListXattrOp lists the names of a file's extended attributes, as in
// listxattr(2). Data holds the NUL-separated name list.
type ListXattrOp struct {
	commonOp

	Inode       InodeID
	Dst         []byte
	BytesNeeded uint32

	Data []byte
}

func (o *ListXattrOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	if len(o.Dst) == 0 {
		size := unsafe.Sizeof(fusekernel.GetxattrOut{})
		b = buffer.NewOutMessage(size)
		out := (*fusekernel.GetxattrOut)(b.Grow(size))
		out.Size = o.BytesNeeded
		return b, nil
	}

	b = buffer.NewOutMessage(uintptr(len(o.Data)))
	b.Append(o.Data)
	return b, nil
}

// SetXattrOp sets an extended attribute's value, as in setxattr(2).
type SetXattrOp struct {
	commonOp

	Inode InodeID
	Name  string
	Value []byte
	Flags XattrFlag
}

func (o *SetXattrOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// RemoveXattrOp removes an extended attribute, as in removexattr(2).
type RemoveXattrOp struct {
	commonOp

	Inode InodeID
	Name  string
}

func (o *RemoveXattrOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Locking
////////////////////////////////////////////////////////////////////////

// GetLkOp tests whether a byte-range lock could be acquired, as in
// fcntl(2) F_GETLK.
type GetLkOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Lock   FileLock
}

func (o *GetLkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.LkOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.LkOut)(b.Grow(size))
	out.Lk.Start = o.Lock.Start
	out.Lk.End = o.Lock.End
	out.Lk.Type = uint32(o.Lock.Type)
	out.Lk.Pid = o.Lock.Pid
	return b, nil
}

// SetLkOp acquires, downgrades, or releases a byte-range lock, as in
// fcntl(2) F_SETLK / F_SETLKW. Block indicates the SETLKW (blocking) form.
type SetLkOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Lock   FileLock
	Block  bool
}

func (o *SetLkOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// FlockOp acquires or releases a whole-file BSD lock, as in flock(2).
type FlockOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Lock   FileLock
	Block  bool
}

func (o *FlockOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Misc
////////////////////////////////////////////////////////////////////////

// FallocateOp preallocates or punches a hole in a file's backing store, as
// in fallocate(2).
type FallocateOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Offset uint64
	Length uint64
	Mode   uint32
}

func (o *FallocateOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	b = buffer.NewOutMessage(0)
	return b, nil
}

// LSeekOp resolves a SEEK_DATA/SEEK_HOLE query, as in lseek(2).
type LSeekOp struct {
	commonOp

	Inode  InodeID
	Handle HandleID
	Offset int64
	Whence SeekWhence

	Result int64
}

func (o *LSeekOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.LseekOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.LseekOut)(b.Grow(size))
	out.Offset = uint64(o.Result)
	return b, nil
}

// CopyFileRangeOp copies a byte range between two open files server-side,
// as in copy_file_range(2).
type CopyFileRangeOp struct {
	commonOp

	InInode   InodeID
	InHandle  HandleID
	InOffset  int64
	OutInode  InodeID
	OutHandle HandleID
	OutOffset int64
	Length    uint64

	// BytesCopied is set by the handler to the number actually copied,
	// which may be less than Length (never an error on its own).
	BytesCopied uint64
}

func (o *CopyFileRangeOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	size := unsafe.Sizeof(fusekernel.WriteOut{})
	b = buffer.NewOutMessage(size)
	out := (*fusekernel.WriteOut)(b.Grow(size))
	out.Size = uint32(o.BytesCopied)
	return b, nil
}

////////////////////////////////////////////////////////////////////////
// Unrecognized ops
////////////////////////////////////////////////////////////////////////

// UnknownOp is a sentinel used for opcodes this package does not recognize.
// The fuseutil file system server responds to it with ENOSYS without
// consulting the file system.
type UnknownOp struct {
	commonOp

	OpCode uint32
	Inode  InodeID
}

func (o *UnknownOp) ShortDesc() string {
	return fmt.Sprintf("<opcode %d>(inode=%v)", o.OpCode, o.Inode)
}

func (o *UnknownOp) KernelResponse(protocol fusekernel.Protocol) (b buffer.OutMessage, err error) {
	panic(fmt.Sprintf("Should never get here for unknown op: %s", o.ShortDesc()))
}
