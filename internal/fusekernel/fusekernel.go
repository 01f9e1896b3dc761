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

// Package fusekernel defines the wire types and constants exchanged with the
// kernel's /dev/fuse character device for protocol version 7 (the FUSE v3
// userspace ABI). Nothing in this package talks to the kernel directly; it
// is pure data definitions used by the buffer and connection packages to
// marshal and unmarshal messages.
package fusekernel

import "fmt"

// Protocol is a major/minor FUSE protocol version pair, as exchanged during
// the INIT handshake.
type Protocol struct {
	Major uint32
	Minor uint32
}

func (p Protocol) String() string {
	return fmt.Sprintf("%d.%d", p.Major, p.Minor)
}

// GE returns whether p is greater than or equal to (major, minor).
func (p Protocol) GE(major, minor uint32) bool {
	if p.Major != major {
		return p.Major > major
	}
	return p.Minor >= minor
}

// Protocol version bounds that this package understands.
const (
	ProtoVersionMinMajor = 7
	ProtoVersionMinMinor = 8
	ProtoVersionMaxMajor = 7
	ProtoVersionMaxMinor = 31
)

// Opcode identifies the kind of request sent by the kernel.
type Opcode uint32

const (
	OpLookup      Opcode = 1
	OpForget      Opcode = 2 // No reply.
	OpGetattr     Opcode = 3
	OpSetattr     Opcode = 4
	OpReadlink    Opcode = 5
	OpSymlink     Opcode = 6
	OpMknod       Opcode = 8
	OpMkdir       Opcode = 9
	OpUnlink      Opcode = 10
	OpRmdir       Opcode = 11
	OpRename      Opcode = 12
	OpLink        Opcode = 13
	OpOpen        Opcode = 14
	OpRead        Opcode = 15
	OpWrite       Opcode = 16
	OpStatfs      Opcode = 17
	OpRelease     Opcode = 18
	OpFsync       Opcode = 20
	OpSetxattr    Opcode = 21
	OpGetxattr    Opcode = 22
	OpListxattr   Opcode = 23
	OpRemovexattr Opcode = 24
	OpFlush       Opcode = 25
	OpInit        Opcode = 26
	OpOpendir     Opcode = 27
	OpReaddir     Opcode = 28
	OpReleasedir  Opcode = 29
	OpFsyncdir    Opcode = 30
	OpGetlk       Opcode = 31
	OpSetlk       Opcode = 32
	OpSetlkw      Opcode = 33
	OpAccess      Opcode = 34
	OpCreate      Opcode = 35
	OpInterrupt   Opcode = 36
	OpBmap        Opcode = 37
	OpDestroy     Opcode = 38
	OpIoctl       Opcode = 39
	OpPoll        Opcode = 40
	OpNotifyReply Opcode = 41
	OpBatchForget Opcode = 42
	OpFallocate   Opcode = 43
	OpReaddirplus Opcode = 44
	OpRename2     Opcode = 45
	OpLseek       Opcode = 46
	OpCopyFileRange Opcode = 47
)

var opcodeNames = map[Opcode]string{
	OpLookup:        "LOOKUP",
	OpForget:        "FORGET",
	OpGetattr:       "GETATTR",
	OpSetattr:       "SETATTR",
	OpReadlink:      "READLINK",
	OpSymlink:       "SYMLINK",
	OpMknod:         "MKNOD",
	OpMkdir:         "MKDIR",
	OpUnlink:        "UNLINK",
	OpRmdir:         "RMDIR",
	OpRename:        "RENAME",
	OpLink:          "LINK",
	OpOpen:          "OPEN",
	OpRead:          "READ",
	OpWrite:         "WRITE",
	OpStatfs:        "STATFS",
	OpRelease:       "RELEASE",
	OpFsync:         "FSYNC",
	OpSetxattr:      "SETXATTR",
	OpGetxattr:      "GETXATTR",
	OpListxattr:     "LISTXATTR",
	OpRemovexattr:   "REMOVEXATTR",
	OpFlush:         "FLUSH",
	OpInit:          "INIT",
	OpOpendir:       "OPENDIR",
	OpReaddir:       "READDIR",
	OpReleasedir:    "RELEASEDIR",
	OpFsyncdir:      "FSYNCDIR",
	OpGetlk:         "GETLK",
	OpSetlk:         "SETLK",
	OpSetlkw:        "SETLKW",
	OpAccess:        "ACCESS",
	OpCreate:        "CREATE",
	OpInterrupt:     "INTERRUPT",
	OpBmap:          "BMAP",
	OpDestroy:       "DESTROY",
	OpIoctl:         "IOCTL",
	OpPoll:          "POLL",
	OpNotifyReply:   "NOTIFY_REPLY",
	OpBatchForget:   "BATCH_FORGET",
	OpFallocate:     "FALLOCATE",
	OpReaddirplus:   "READDIRPLUS",
	OpRename2:       "RENAME2",
	OpLseek:         "LSEEK",
	OpCopyFileRange: "COPY_FILE_RANGE",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OPCODE(%d)", uint32(o))
}

// InitFlags are the capability bits negotiated during INIT.
type InitFlags uint32

const (
	InitAsyncRead       InitFlags = 1 << 0
	InitPosixLocks      InitFlags = 1 << 1
	InitFileOps         InitFlags = 1 << 2
	InitAtomicOTrunc    InitFlags = 1 << 3
	InitExportSupport   InitFlags = 1 << 4
	InitBigWrites       InitFlags = 1 << 5
	InitDontMask        InitFlags = 1 << 6
	InitSpliceWrite     InitFlags = 1 << 7
	InitSpliceMove      InitFlags = 1 << 8
	InitSpliceRead      InitFlags = 1 << 9
	InitFlockLocks      InitFlags = 1 << 10
	InitHasIoctlDir     InitFlags = 1 << 11
	InitAutoInvalData   InitFlags = 1 << 12
	InitDoReaddirplus   InitFlags = 1 << 13
	InitReaddirplusAuto InitFlags = 1 << 14
	InitAsyncDIO        InitFlags = 1 << 15
	InitWritebackCache  InitFlags = 1 << 16
	InitNoOpenSupport   InitFlags = 1 << 17
	InitParallelDirOps  InitFlags = 1 << 18
	InitHandleKillpriv  InitFlags = 1 << 19
	InitPosixACL        InitFlags = 1 << 20
	InitAbortError      InitFlags = 1 << 21
	InitMaxPages        InitFlags = 1 << 22
	InitCacheSymlinks   InitFlags = 1 << 23
	InitNoOpendirSupport InitFlags = 1 << 24
	InitExplicitInvalData InitFlags = 1 << 25
)

func (fl InitFlags) String() string {
	var names []string
	for bit, name := range initFlagNames {
		if fl&bit != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	s := ""
	for i, n := range names {
		if i > 0 {
			s += "|"
		}
		s += n
	}
	return s
}

var initFlagNames = map[InitFlags]string{
	InitAsyncRead:         "ASYNC_READ",
	InitPosixLocks:        "POSIX_LOCKS",
	InitFileOps:           "FILE_OPS",
	InitAtomicOTrunc:      "ATOMIC_O_TRUNC",
	InitExportSupport:     "EXPORT_SUPPORT",
	InitBigWrites:         "BIG_WRITES",
	InitDontMask:          "DONT_MASK",
	InitSpliceWrite:       "SPLICE_WRITE",
	InitSpliceMove:        "SPLICE_MOVE",
	InitSpliceRead:        "SPLICE_READ",
	InitFlockLocks:        "FLOCK_LOCKS",
	InitHasIoctlDir:       "HAS_IOCTL_DIR",
	InitAutoInvalData:     "AUTO_INVAL_DATA",
	InitDoReaddirplus:     "DO_READDIRPLUS",
	InitReaddirplusAuto:   "READDIRPLUS_AUTO",
	InitAsyncDIO:          "ASYNC_DIO",
	InitWritebackCache:    "WRITEBACK_CACHE",
	InitNoOpenSupport:     "NO_OPEN_SUPPORT",
	InitParallelDirOps:    "PARALLEL_DIROPS",
	InitHandleKillpriv:    "HANDLE_KILLPRIV",
	InitPosixACL:          "POSIX_ACL",
	InitAbortError:        "ABORT_ERROR",
	InitMaxPages:          "MAX_PAGES",
	InitCacheSymlinks:     "CACHE_SYMLINKS",
	InitNoOpendirSupport:  "NO_OPENDIR_SUPPORT",
	InitExplicitInvalData: "EXPLICIT_INVAL_DATA",
}

// ReadFlags are bits set on ReadIn.Flags.
type ReadFlags uint32

const ReadLockOwner ReadFlags = 1 << 1

// WriteFlags are bits set on WriteIn.WriteFlags.
type WriteFlags uint32

const (
	WriteCache     WriteFlags = 1 << 0
	WriteLockOwner WriteFlags = 1 << 1
)

// RenameFlags are the flags accepted by the RENAME2 opcode (man rename(2)).
type RenameFlags uint32

const (
	RenameNoReplace RenameFlags = 1 << 0
	RenameExchange  RenameFlags = 1 << 1
	RenameWhiteout  RenameFlags = 1 << 2
)

// FsyncFlags are bits set on FsyncIn.FsyncFlags; bit 0 means "datasync".
type FsyncFlags uint32

const FsyncFDataSync FsyncFlags = 1 << 0

// Wire structs. Field order and widths mirror the Linux FUSE kernel ABI
// (struct fuse_attr, fuse_entry_out, etc.); the connection reads and writes
// them directly as /dev/fuse message payloads.

type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	Nodeid  uint64
	Uid     uint32
	Gid     uint32
	Pid     uint32
	Padding uint32
}

type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint32
	BlkSize   uint32
	Padding   uint32
}

type EntryOut struct {
	Nodeid         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

// EntryOutSize returns the wire size of EntryOut for the given protocol
// version; all supported versions use the same layout.
func EntryOutSize(p Protocol) uintptr {
	return sizeofEntryOut
}

type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

func AttrOutSize(p Protocol) uintptr {
	return sizeofAttrOut
}

type GetattrIn struct {
	GetattrFlags uint32
	Dummy        uint32
	Fh           uint64
}

const GetattrFh = 1 << 0

type MkdirIn struct {
	Mode    uint32
	Umask   uint32
}

type MknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	Padding uint32
}

type RenameIn struct {
	Newdir uint64
}

type Rename2In struct {
	Newdir  uint64
	Flags   RenameFlags
	Padding uint32
}

type LinkIn struct {
	Oldnodeid uint64
}

type SetattrIn struct {
	Valid     uint32
	Padding   uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Unused2   uint64
	AtimeNsec uint32
	MtimeNsec uint32
	Unused3   uint32
	Mode      uint32
	Unused4   uint32
	UID       uint32
	GID       uint32
	Unused5   uint32
}

// SetattrValid bits.
const (
	SetattrMode     = 1 << 0
	SetattrUID      = 1 << 1
	SetattrGID      = 1 << 2
	SetattrSize     = 1 << 3
	SetattrAtime    = 1 << 4
	SetattrMtime    = 1 << 5
	SetattrHandle   = 1 << 6
	SetattrAtimeNow = 1 << 7
	SetattrMtimeNow = 1 << 8
	SetattrLockOwner = 1 << 9
)

type OpenIn struct {
	Flags  uint32
	Unused uint32
}

// OpenFlags are bits set on OpenOut.OpenFlags.
type OpenFlags uint32

const (
	OpenDirectIO   OpenFlags = 1 << 0
	OpenKeepCache  OpenFlags = 1 << 1
	OpenNonSeekable OpenFlags = 1 << 2
	OpenCacheDir   OpenFlags = 1 << 3
)

type OpenOut struct {
	Fh        uint64
	OpenFlags OpenFlags
	Padding   uint32
}

type CreateIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
}

type ReleaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

const ReleaseFlush = 1 << 0

type FlushIn struct {
	Fh        uint64
	Unused    uint32
	Padding   uint32
	LockOwner uint64
}

type ReadIn struct {
	Fh        uint64
	Offset    uint64
	Size      uint32
	ReadFlags ReadFlags
	LockOwner uint64
	Flags     uint32
	Padding   uint32
}

type WriteIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags WriteFlags
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

type WriteOut struct {
	Size    uint32
	Padding uint32
}

type StatfsOut struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

type FsyncIn struct {
	Fh         uint64
	FsyncFlags FsyncFlags
	Padding    uint32
}

type SetxattrIn struct {
	Size  uint32
	Flags uint32
}

type GetxattrIn struct {
	Size    uint32
	Padding uint32
}

type GetxattrOut struct {
	Size    uint32
	Padding uint32
}

type LkIn struct {
	Fh      uint64
	Owner   uint64
	Lk      FileLock
	LkFlags uint32
	Padding uint32
}

type LkOut struct {
	Lk FileLock
}

type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

const LkFlock = 1 << 0

type AccessIn struct {
	Mask    uint32
	Padding uint32
}

type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        InitFlags
}

type InitOut struct {
	Major              uint32
	Minor              uint32
	MaxReadahead       uint32
	Flags              InitFlags
	MaxBackground      uint16
	CongestionThreshold uint16
	MaxWrite           uint32
	TimeGran           uint32
	MaxPages           uint16
	Padding            uint16
	Unused             [8]uint32
}

type InterruptIn struct {
	Unique uint64
}

type BmapIn struct {
	Block     uint64
	BlockSize uint32
	Padding   uint32
}

type BmapOut struct {
	Block uint64
}

type IoctlIn struct {
	Fh      uint64
	Flags   uint32
	Cmd     uint32
	Arg     uint64
	InSize  uint32
	OutSize uint32
}

type IoctlOut struct {
	Result  int32
	Flags   uint32
	InIovs  uint32
	OutIovs uint32
}

type PollIn struct {
	Fh      uint64
	Kh      uint64
	Flags   uint32
	Events  uint32
}

type PollOut struct {
	Revents uint32
	Padding uint32
}

type FallocateIn struct {
	Fh      uint64
	Offset  uint64
	Length  uint64
	Mode    uint32
	Padding uint32
}

type LseekIn struct {
	Fh      uint64
	Offset  uint64
	Whence  uint32
	Padding uint32
}

type LseekOut struct {
	Offset uint64
}

type CopyFileRangeIn struct {
	FhIn      uint64
	OffIn     uint64
	NodeidOut uint64
	FhOut     uint64
	OffOut    uint64
	Len       uint64
	Flags     uint64
}

type Dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
	// Name follows, not zero terminated, padded to an 8 byte boundary.
}

type DirentPlus struct {
	EntryOut EntryOut
	Dirent   Dirent
}

const (
	sizeofInHeader   = 40
	sizeofOutHeader  = 16
	sizeofAttr       = 88
	sizeofEntryOut   = 16 + 16 + 8 + sizeofAttr
	sizeofAttrOut    = 16 + sizeofAttr
	sizeofInitOut    = 4*2 + 4 + 4 + 2 + 2 + 4 + 4 + 2 + 2 + 8*4
	sizeofWriteOut   = 8
	sizeofStatfsOut  = 8*5 + 4*4 + 6*4
	sizeofOpenOut    = 8 + 4 + 4
	sizeofGetxattrOut = 8
	sizeofLkOut      = 24
	sizeofBmapOut    = 8
	sizeofIoctlOut   = 16
	sizeofPollOut    = 8
	sizeofLseekOut   = 8
)
